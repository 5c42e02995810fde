package versions

import (
	"fmt"

	"github.com/dmitrijs2005/filekeeper/internal/common"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
)

// ValidateChecksum accepts only a lower-case hex SHA-256 digest.
func ValidateChecksum(checksum string) error {
	if len(checksum) != models.ChecksumLength {
		return fmt.Errorf("%w: checksum must be %d hex characters, got %d",
			common.ErrorValidation, models.ChecksumLength, len(checksum))
	}
	for i := 0; i < len(checksum); i++ {
		c := checksum[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("%w: checksum is not lower-case hex", common.ErrorValidation)
		}
	}
	return nil
}
