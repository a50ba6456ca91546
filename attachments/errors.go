package attachments

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrFileNotFound = errors.New("file not found")
)

type SizeMismatchError struct {
	Expected int64
	Actual   int64
}

func (err *SizeMismatchError) Error() string {
	return fmt.Sprintf("size mismatch: expected %d bytes, got %d", err.Expected, err.Actual)
}

type MimeTypeError struct {
	Expected string
	Actual   string
}

func (err *MimeTypeError) Error() string {
	return fmt.Sprintf("not allowed to upload '%s' file, expected '%s'", err.Actual, err.Expected)
}

type InvalidPathError struct {
	Path string
}

func (err *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid file path '%s'", err.Path)
}

func IsClientError(err error) bool {
	var (
		sizeMismatch *SizeMismatchError
		mimeType     *MimeTypeError
		invalidPath  *InvalidPathError
	)

	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.As(err, &sizeMismatch) ||
		errors.As(err, &mimeType) ||
		errors.As(err, &invalidPath)
}
