// ABOUTME: Authentication ceremony: assertion options and signature verification
// ABOUTME: Verifies assertions against stored COSE keys and bumps sign counters

package ceremony

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"

	"github.com/padron/dni-gateway/internal/session"
	"github.com/padron/dni-gateway/internal/store"
)

// AssertionResponse is the assertion payload submitted by the client.
type AssertionResponse struct {
	RawID             protocol.URLEncodedBase64 `json:"rawId"`
	AuthenticatorData protocol.URLEncodedBase64 `json:"authenticatorData"`
	ClientDataJSON    protocol.URLEncodedBase64 `json:"clientDataJSON"`
	Signature         protocol.URLEncodedBase64 `json:"signature"`
}

// AuthenticationOptions is the response body for authentication options requests.
type AuthenticationOptions struct {
	PublicKey RequestOptions `json:"publicKey"`
}

// RequestOptions describes the assertion the client should produce.
type RequestOptions struct {
	Challenge        string              `json:"challenge"`
	Timeout          int64               `json:"timeout"`
	RPID             string              `json:"rpId"`
	UserVerification string              `json:"userVerification"`
	AllowCredentials []AllowedCredential `json:"allowCredentials"`
}

// AllowedCredential names one credential the caller may assert with.
type AllowedCredential struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// BeginAuthentication issues a fresh authentication challenge scoped to the
// DNI's registered credentials. Returns ErrNoCredentials when the DNI owns
// none.
func (s *Service) BeginAuthentication(ctx context.Context, dni, rpID string) (*AuthenticationOptions, *session.Challenge, error) {
	creds, err := s.creds.ListCredentialsByDNI(ctx, dni)
	if err != nil {
		return nil, nil, fmt.Errorf("listing credentials: %w", err)
	}
	if len(creds) == 0 {
		return nil, nil, ErrNoCredentials
	}

	value, err := newChallenge()
	if err != nil {
		return nil, nil, err
	}

	allowed := make([]AllowedCredential, len(creds))
	ids := make([]string, len(creds))
	for i, c := range creds {
		allowed[i] = AllowedCredential{Type: "public-key", ID: c.CredentialID}
		ids[i] = c.CredentialID
	}

	ch := session.NewChallenge(session.PurposeAuthentication, value, rpID, ids)

	opts := &AuthenticationOptions{
		PublicKey: RequestOptions{
			Challenge:        value,
			Timeout:          s.config.Timeout.Milliseconds(),
			RPID:             rpID,
			UserVerification: "required",
			AllowCredentials: allowed,
		},
	}

	return opts, ch, nil
}

// FinishAuthentication verifies the assertion against the consumed challenge
// and the stored public key, then records the authenticator's sign counter.
// The challenge is gone whether or not verification passes.
func (s *Service) FinishAuthentication(ctx context.Context, dni string, ch *session.Challenge, resp *AssertionResponse) error {
	if ch == nil {
		return ErrNoActiveChallenge
	}
	if len(resp.RawID) == 0 || len(resp.AuthenticatorData) == 0 || len(resp.ClientDataJSON) == 0 || len(resp.Signature) == 0 {
		return fmt.Errorf("%w: missing assertion fields", ErrMalformedAssertion)
	}

	if err := s.parseClientData(resp.ClientDataJSON, protocol.AssertCeremony, ch, ErrMalformedAssertion); err != nil {
		return err
	}

	credentialID := base64.RawURLEncoding.EncodeToString(resp.RawID)
	if len(ch.AllowedCredentialIDs) > 0 && !containsString(ch.AllowedCredentialIDs, credentialID) {
		return fmt.Errorf("%w: credential not in challenge scope", ErrUnknownCredential)
	}

	cred, err := s.creds.GetCredential(ctx, credentialID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUnknownCredential
	}
	if err != nil {
		return fmt.Errorf("looking up credential: %w", err)
	}
	if cred.DNI != dni {
		return ErrUnknownCredential
	}

	var authData protocol.AuthenticatorData
	if err := authData.Unmarshal(resp.AuthenticatorData); err != nil {
		return fmt.Errorf("%w: authenticator data: %v", ErrMalformedAssertion, err)
	}

	if err := checkRPIDHash(&authData, ch.RPID); err != nil {
		return err
	}
	if !authData.Flags.UserPresent() {
		return fmt.Errorf("%w: user presence not asserted", ErrVerificationFailed)
	}

	key, err := webauthncose.ParsePublicKey(cred.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: stored public key: %v", ErrVerificationFailed, err)
	}

	// The signature covers authenticatorData || SHA-256(clientDataJSON).
	clientDataHash := sha256.Sum256(resp.ClientDataJSON)
	sigData := make([]byte, 0, len(resp.AuthenticatorData)+len(clientDataHash))
	sigData = append(sigData, resp.AuthenticatorData...)
	sigData = append(sigData, clientDataHash[:]...)

	valid, err := webauthncose.VerifySignature(key, sigData, resp.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	if !valid {
		return fmt.Errorf("%w: signature invalid", ErrVerificationFailed)
	}

	// A counter that fails to increase when either side uses counters is a
	// cloned-authenticator signal.
	if authData.Counter > 0 || cred.SignCount > 0 {
		if authData.Counter <= cred.SignCount {
			return fmt.Errorf("%w: sign counter did not increase", ErrVerificationFailed)
		}
	}

	if err := s.creds.UpdateCredentialSignCount(ctx, credentialID, authData.Counter); err != nil {
		return fmt.Errorf("updating sign count: %w", err)
	}

	s.logger.Info("assertion verified", "dni", dni, "credential_id", credentialID)
	return nil
}
