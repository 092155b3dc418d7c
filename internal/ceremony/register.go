// ABOUTME: Registration ceremony: creation options and attestation verification
// ABOUTME: Extracts the attested COSE public key and commits the credential

package ceremony

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"

	"github.com/padron/dni-gateway/internal/session"
	"github.com/padron/dni-gateway/internal/store"
)

// RegistrationResponse is the attestation payload submitted by the client.
type RegistrationResponse struct {
	RawID             protocol.URLEncodedBase64 `json:"rawId"`
	ClientDataJSON    protocol.URLEncodedBase64 `json:"clientDataJSON"`
	AttestationObject protocol.URLEncodedBase64 `json:"attestationObject"`
}

// RegistrationOptions is the response body for registration options requests.
type RegistrationOptions struct {
	PublicKey CreationOptions `json:"publicKey"`
}

// CreationOptions describes the credential the client should create.
type CreationOptions struct {
	Challenge              string                         `json:"challenge"`
	RP                     RelyingParty                   `json:"rp"`
	User                   UserEntity                     `json:"user"`
	PubKeyCredParams       []protocol.CredentialParameter `json:"pubKeyCredParams"`
	Timeout                int64                          `json:"timeout"`
	Attestation            string                         `json:"attestation"`
	AuthenticatorSelection AuthenticatorSelection         `json:"authenticatorSelection"`
}

// RelyingParty identifies the gateway to the authenticator.
type RelyingParty struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UserEntity identifies the registering user.
type UserEntity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// AuthenticatorSelection carries authenticator requirements.
type AuthenticatorSelection struct {
	UserVerification string `json:"userVerification"`
}

var defaultCredentialParameters = []protocol.CredentialParameter{
	{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgES256},
	{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgRS256},
}

// BeginRegistration issues a fresh registration challenge for the DNI and
// returns the creation options together with the challenge to hold in the
// caller's session.
func (s *Service) BeginRegistration(dni, rpID string) (*RegistrationOptions, *session.Challenge, error) {
	value, err := newChallenge()
	if err != nil {
		return nil, nil, err
	}

	ch := session.NewChallenge(session.PurposeRegistration, value, rpID, nil)

	opts := &RegistrationOptions{
		PublicKey: CreationOptions{
			Challenge: value,
			RP: RelyingParty{
				ID:   rpID,
				Name: s.config.RPDisplayName,
			},
			User: UserEntity{
				ID:          base64.RawURLEncoding.EncodeToString([]byte(dni)),
				Name:        dni,
				DisplayName: "DNI " + dni,
			},
			PubKeyCredParams:       defaultCredentialParameters,
			Timeout:                s.config.Timeout.Milliseconds(),
			Attestation:            "none",
			AuthenticatorSelection: AuthenticatorSelection{UserVerification: "required"},
		},
	}

	return opts, ch, nil
}

// FinishRegistration verifies the attestation response against the consumed
// challenge and commits the credential. The caller has already removed the
// challenge from the session; it is gone whether or not verification passes.
func (s *Service) FinishRegistration(ctx context.Context, dni string, ch *session.Challenge, resp *RegistrationResponse) error {
	if ch == nil {
		return ErrNoActiveChallenge
	}
	if len(resp.RawID) == 0 || len(resp.ClientDataJSON) == 0 || len(resp.AttestationObject) == 0 {
		return fmt.Errorf("%w: missing attestation fields", ErrMalformedResponse)
	}

	if err := s.parseClientData(resp.ClientDataJSON, protocol.CreateCeremony, ch, ErrMalformedResponse); err != nil {
		return err
	}

	var ao protocol.AttestationObject
	if err := webauthncbor.Unmarshal(resp.AttestationObject, &ao); err != nil {
		return fmt.Errorf("%w: attestationObject: %v", ErrMalformedResponse, err)
	}

	var authData protocol.AuthenticatorData
	if err := authData.Unmarshal(ao.RawAuthData); err != nil {
		return fmt.Errorf("%w: authenticator data: %v", ErrMalformedResponse, err)
	}

	if err := checkRPIDHash(&authData, ch.RPID); err != nil {
		return err
	}
	if !authData.Flags.UserPresent() {
		return fmt.Errorf("%w: user presence not asserted", ErrVerificationFailed)
	}
	if !authData.Flags.HasAttestedCredentialData() {
		return fmt.Errorf("%w: no attested credential data", ErrVerificationFailed)
	}

	credentialID := base64.RawURLEncoding.EncodeToString(resp.RawID)
	attestedID := base64.RawURLEncoding.EncodeToString(authData.AttData.CredentialID)
	if credentialID != attestedID {
		return fmt.Errorf("%w: credential id mismatch", ErrVerificationFailed)
	}

	// The key must at least parse as a COSE key before we store it.
	if _, err := webauthncose.ParsePublicKey(authData.AttData.CredentialPublicKey); err != nil {
		return fmt.Errorf("%w: credential public key: %v", ErrVerificationFailed, err)
	}

	cred := &store.Credential{
		CredentialID: credentialID,
		DNI:          dni,
		UserHandle:   dni,
		PublicKey:    authData.AttData.CredentialPublicKey,
		SignCount:    authData.Counter,
	}
	if err := s.creds.UpsertCredential(ctx, cred); err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}

	s.logger.Info("credential registered", "dni", dni, "credential_id", credentialID)
	return nil
}
