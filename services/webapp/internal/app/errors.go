package app

import "errors"

var (
	// ErrInvalidChannelName is returned when a channel name is empty or
	// slugifies to nothing.
	ErrInvalidChannelName = errors.New("invalid channel name")

	// ErrInvalidFileName is returned when a file name is empty or unsafe.
	ErrInvalidFileName = errors.New("invalid file name")

	// ErrUnsupportedFileType is returned when the uploaded file's extension
	// is not in the allowed set.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrFileTooLarge is returned when an upload exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidAccessLevel is returned for an unrecognized access level.
	ErrInvalidAccessLevel = errors.New("invalid access level")

	// ErrQuestionRequired is returned when an ask request has no question.
	ErrQuestionRequired = errors.New("question is required")
)
