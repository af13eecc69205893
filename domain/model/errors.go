package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies why a publish for one platform did not succeed.
type ErrorKind string

const (
	KindCredentialExpired   ErrorKind = "credential_expired"
	KindIncompatibleAsset   ErrorKind = "incompatible_asset"
	KindNotConnected        ErrorKind = "not_connected"
	KindUploadInitFailed    ErrorKind = "upload_init_failed"
	KindChunkUploadFailed   ErrorKind = "chunk_upload_failed"
	KindEmptyAsset          ErrorKind = "empty_asset"
	KindAssetTooLarge       ErrorKind = "asset_too_large"
	KindPlatformUnsupported ErrorKind = "platform_unsupported"
	KindPublishFailed       ErrorKind = "publish_failed"
	KindCancelled           ErrorKind = "cancelled"
	KindInternal            ErrorKind = "internal"
)

var (
	ErrCredentialExpired   = errors.New(string(KindCredentialExpired))
	ErrIncompatibleAsset   = errors.New(string(KindIncompatibleAsset))
	ErrNotConnected        = errors.New(string(KindNotConnected))
	ErrUploadInitFailed    = errors.New(string(KindUploadInitFailed))
	ErrChunkUploadFailed   = errors.New(string(KindChunkUploadFailed))
	ErrEmptyAsset          = errors.New(string(KindEmptyAsset))
	ErrAssetTooLarge       = errors.New(string(KindAssetTooLarge))
	ErrPlatformUnsupported = errors.New(string(KindPlatformUnsupported))
	ErrPublishFailed       = errors.New(string(KindPublishFailed))
	ErrCancelled           = errors.New(string(KindCancelled))
	ErrInternal            = errors.New(string(KindInternal))

	ErrCredentialNotFound = errors.New("credential_not_found")
	ErrInvalidState       = errors.New("invalid_oauth_state")
	ErrOAuthNotConfigured = errors.New("oauth_not_configured")
)

var sentinels = map[ErrorKind]error{
	KindCredentialExpired:   ErrCredentialExpired,
	KindIncompatibleAsset:   ErrIncompatibleAsset,
	KindNotConnected:        ErrNotConnected,
	KindUploadInitFailed:    ErrUploadInitFailed,
	KindChunkUploadFailed:   ErrChunkUploadFailed,
	KindEmptyAsset:          ErrEmptyAsset,
	KindAssetTooLarge:       ErrAssetTooLarge,
	KindPlatformUnsupported: ErrPlatformUnsupported,
	KindPublishFailed:       ErrPublishFailed,
	KindCancelled:           ErrCancelled,
	KindInternal:            ErrInternal,
}

// PublishError carries the kind plus enough context to debug a failed call.
type PublishError struct {
	Kind       ErrorKind
	Platform   Platform
	Op         string
	StatusCode int
	Err        error
}

func (e *PublishError) Error() string {
	msg := string(e.Kind)
	if e.Platform != "" {
		msg = fmt.Sprintf("%s: %s", e.Platform, msg)
	}
	if e.Op != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Op)
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s status=%d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *PublishError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrChunkUploadFailed) match on the kind.
func (e *PublishError) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// NewPublishError builds a PublishError.
func NewPublishError(kind ErrorKind, platform Platform, op string, err error) *PublishError {
	return &PublishError{Kind: kind, Platform: platform, Op: op, Err: err}
}

// KindOf extracts the kind of an error. Context cancellation maps to
// KindCancelled; unknown errors are KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	for kind, s := range sentinels {
		if errors.Is(err, s) {
			return kind
		}
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindInternal
}

// UserMessage renders guidance so the UI can offer reconnect, manual upload or
// retry depending on what went wrong.
func UserMessage(kind ErrorKind, p Platform) string {
	name := p.DisplayName()
	switch kind {
	case KindNotConnected:
		return fmt.Sprintf("%s is not connected. Connect your account and try again.", name)
	case KindCredentialExpired:
		return fmt.Sprintf("Your %s authorization has expired. Please reconnect %s.", name, name)
	case KindIncompatibleAsset:
		return fmt.Sprintf("This content type can't be published to %s. Download it and upload manually instead.", name)
	case KindPlatformUnsupported:
		return fmt.Sprintf("Publishing to %s is not supported yet. Download the content and post it manually.", name)
	case KindEmptyAsset:
		return "The media file is empty and can't be uploaded."
	case KindAssetTooLarge:
		return fmt.Sprintf("The media file exceeds the %s size limit.", name)
	case KindUploadInitFailed:
		return fmt.Sprintf("%s rejected the upload. Check the title and description, then retry.", name)
	case KindChunkUploadFailed:
		return fmt.Sprintf("The upload to %s was interrupted. Retry the publish.", name)
	case KindPublishFailed:
		return fmt.Sprintf("%s failed to publish the post. Retry the publish.", name)
	case KindCancelled:
		return fmt.Sprintf("Publishing to %s was cancelled.", name)
	case "":
		return fmt.Sprintf("Published to %s.", name)
	default:
		return fmt.Sprintf("Something went wrong while publishing to %s. Retry the publish.", name)
	}
}
