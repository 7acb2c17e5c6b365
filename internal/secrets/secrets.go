// Package secrets provides a platform-abstracted interface for secure
// credential storage. On macOS, the account password is stored in the
// system Keychain so it never touches disk in cleartext. On other
// platforms, a no-op fallback is used and the CLI prompts interactively.
package secrets

import "errors"

// ServiceName is the service name used for wirechat credentials in the
// system keychain.
const ServiceName = "Wirechat"

// ErrNotFound is returned when a credential is not found in the store.
var ErrNotFound = errors.New("credential not found")

// ErrNotSupported is returned when the secret store is not supported on
// the current platform.
var ErrNotSupported = errors.New("secret store not supported on this platform")

// SecretStore provides an interface for secure credential storage.
// Implementations should be safe for concurrent use.
type SecretStore interface {
	// Get retrieves a password for the given service and account.
	// Returns ErrNotFound if the credential does not exist.
	Get(service, account string) (string, error)

	// Set stores a password for the given service and account.
	// If a credential already exists, it is updated.
	Set(service, account, password string) error

	// Delete removes a credential for the given service and account.
	// Returns ErrNotFound if the credential does not exist.
	Delete(service, account string) error

	// IsSupported returns true if this store is functional on the
	// current platform.
	IsSupported() bool
}

// store is the package-level secret store instance, set by the
// platform-specific init() function.
var store SecretStore

// Default returns the default SecretStore for the current platform.
// This function always returns a valid store; on unsupported platforms,
// it returns a NoopStore that returns ErrNotSupported for all operations.
func Default() SecretStore {
	if store == nil {
		store = &NoopStore{}
	}
	return store
}

// IsSupported returns true if secure credential storage is available on
// this platform.
func IsSupported() bool {
	return Default().IsSupported()
}

// GetPassword retrieves the stored password for the given account
// identifier (email or phone number).
func GetPassword(account string) (string, error) {
	return Default().Get(ServiceName, account)
}

// SetPassword stores the password for the given account identifier.
func SetPassword(account, password string) error {
	return Default().Set(ServiceName, account, password)
}

// DeletePassword removes the stored password for the given account
// identifier.
func DeletePassword(account string) error {
	return Default().Delete(ServiceName, account)
}
