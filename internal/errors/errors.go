// Package errors defines the failure categories surfaced by the chatbot loop.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNoSpeech        = errors.New("no speech detected")
	ErrNotFound        = errors.New("not found")
	ErrInvalidResponse = errors.New("invalid response format")
	ErrQuit            = errors.New("quit requested")
)

// SpeechError is a recording or recognition failure. The loop logs it and
// waits for the next input.
type SpeechError struct {
	Op  string
	Err error
}

func (e *SpeechError) Error() string {
	return fmt.Sprintf("speech %s: %v", e.Op, e.Err)
}

func (e *SpeechError) Unwrap() error { return e.Err }

func NewSpeechError(op string, err error) *SpeechError {
	return &SpeechError{Op: op, Err: err}
}

// ServiceError is a failed or malformed call to the model service.
type ServiceError struct {
	Model  string
	Status int
	Err    error
}

func (e *ServiceError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("model %s: status %d: %v", e.Model, e.Status, e.Err)
	}
	return fmt.Sprintf("model %s: %v", e.Model, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func NewServiceError(model string, status int, err error) *ServiceError {
	return &ServiceError{Model: model, Status: status, Err: err}
}

// FileError is a filesystem failure on a conversation or agent file.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

func NewFileError(path string, err error) *FileError {
	return &FileError{Path: path, Err: err}
}

// CommandError is a failed external program (model registration, converter,
// screenshot tool, renderer).
type CommandError struct {
	Name   string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("command %s: %v: %s", e.Name, e.Err, e.Output)
	}
	return fmt.Sprintf("command %s: %v", e.Name, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

func NewCommandError(name, output string, err error) *CommandError {
	return &CommandError{Name: name, Output: output, Err: err}
}

// Kind names the category of err for logging.
func Kind(err error) string {
	var (
		speech  *SpeechError
		service *ServiceError
		file    *FileError
		command *CommandError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &speech):
		return "speech"
	case errors.As(err, &service):
		return "service"
	case errors.As(err, &file):
		return "file"
	case errors.As(err, &command):
		return "command"
	default:
		return "internal"
	}
}

// Display renders err the way it is shown to the user.
func Display(err error) string {
	if err == nil {
		return ""
	}
	return "Error: " + err.Error()
}
