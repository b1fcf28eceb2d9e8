package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNameExhausted      = errors.New("no free file name")
	ErrStorageIO          = errors.New("storage i/o")
	ErrValidationRejected = errors.New("upload rejected")
	ErrOwnerSync          = errors.New("owner sync")
)
