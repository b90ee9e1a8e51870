package service

import (
	"errors"
	"log"

	"gorm.io/gorm"

	"github.com/kithly/marketplace/pkg/apperr"
)

// storeErr maps a repository error onto the application taxonomy.
func storeErr(err error, notFoundMsg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound(notFoundMsg)
	default:
		log.Printf("[store] %v", err)
		return apperr.Internal(err, "store failure")
	}
}

func isNotFound(err error) bool { return errors.Is(err, gorm.ErrRecordNotFound) }

func isDuplicate(err error) bool { return errors.Is(err, gorm.ErrDuplicatedKey) }
