package wellness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/dost/internal/structured"
	"github.com/MrWong99/dost/pkg/provider/generate"
)

// MaxCredentialSize is the largest accepted credential image.
const MaxCredentialSize = 10 << 20

var (
	// ErrUnsupportedImage is returned for images other than JPEG, PNG or WebP.
	ErrUnsupportedImage = errors.New("wellness: unsupported image type")

	// ErrImageTooLarge is returned for images above MaxCredentialSize.
	ErrImageTooLarge = errors.New("wellness: image too large")

	// ErrCredentialRejected is returned when the document does not look
	// genuine. Its text is shown to the applicant as is.
	ErrCredentialRejected = errors.New("try again!")

	// ErrVerificationFailed is returned when the check itself could not be
	// completed. Its text is shown to the applicant as is.
	ErrVerificationFailed = errors.New("Neural link error. try again!")
)

var credentialMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

const credentialPrompt = "You are a professional credential verification agent for Dost. Examine this image. " +
	"Is it a genuine academic degree or medical specialist certificate? Look for institutional seals, " +
	"signatures, and formal formatting. Return a JSON object with a boolean 'accepted' and a string 'reason'."

// CredentialResult is the auditor's decision on a document.
type CredentialResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
}

var credentialSchema = &generate.Schema{
	Type: generate.TypeObject,
	Properties: map[string]*generate.Schema{
		"accepted": {
			Type:        generate.TypeBoolean,
			Description: "True if the degree looks authentic and genuine, false otherwise.",
		},
		"reason": {
			Type:        generate.TypeString,
			Description: "A short reason for the decision.",
		},
	},
	Required: []string{"accepted", "reason"},
}

// VerifyCredential inspects an uploaded degree or certificate image. It
// returns the decision when accepted, [ErrCredentialRejected] when the model
// judges the document not genuine (or says nothing), and
// [ErrVerificationFailed] when the check could not run.
func (s *Service) VerifyCredential(ctx context.Context, img generate.Attachment) (CredentialResult, error) {
	if !credentialMIMETypes[img.MIMEType] {
		return CredentialResult{}, fmt.Errorf("%w: %q", ErrUnsupportedImage, img.MIMEType)
	}
	if len(img.Data) == 0 {
		return CredentialResult{}, fmt.Errorf("%w: empty file", ErrUnsupportedImage)
	}
	if len(img.Data) > MaxCredentialSize {
		return CredentialResult{}, fmt.Errorf("%w: %d bytes", ErrImageTooLarge, len(img.Data))
	}

	req := generate.Request{
		Model:       s.Models().Credential,
		Prompt:      credentialPrompt,
		Attachments: []generate.Attachment{img},
		Schema:      credentialSchema,
	}
	res, err := structured.Call(ctx, s.gen, req, CredentialResult{Reason: "Handshake failed"},
		structured.WithOperation("credential"), structured.WithMetrics(s.metrics))
	switch {
	case errors.Is(err, structured.ErrEmptyResponse):
		slog.Info("wellness: credential check returned nothing")
		return res, ErrCredentialRejected
	case err != nil:
		slog.Error("wellness: credential check failed", "err", err)
		return CredentialResult{}, ErrVerificationFailed
	case !res.Accepted:
		slog.Info("wellness: credential rejected", "reason", res.Reason)
		return res, ErrCredentialRejected
	}
	return res, nil
}
