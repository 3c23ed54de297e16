package registry

import "errors"

// Registry errors.
var (
	// ErrStoreRequired is returned when a registry is created without a store.
	ErrStoreRequired = errors.New("registry: store is required")

	// ErrAlreadyProvisioned is returned by Provision when a master credential exists.
	ErrAlreadyProvisioned = errors.New("registry: already provisioned")

	// ErrNotProvisioned is returned when an operation needs a master credential
	// and the storage is virgin.
	ErrNotProvisioned = errors.New("registry: not provisioned")

	// ErrAlreadyExists is returned by Add for an enrolled credential.
	ErrAlreadyExists = errors.New("registry: credential already enrolled")

	// ErrNotFound is returned by Remove for a credential that is not enrolled.
	ErrNotFound = errors.New("registry: credential not found")

	// ErrStorageFull is returned by Add when every slot is in use.
	ErrStorageFull = errors.New("registry: storage full")

	// ErrStorageIncoherent is returned when the persisted header describes
	// more entries than the store can hold. It is not recoverable without a
	// wipe.
	ErrStorageIncoherent = errors.New("registry: storage incoherent")

	// ErrMasterCredential is returned by Add for the master credential,
	// which never occupies an entry slot.
	ErrMasterCredential = errors.New("registry: credential is the master credential")

	// ErrUnmatchable is returned when adding or provisioning a credential
	// whose first byte is zero. Such a credential could never match again.
	ErrUnmatchable = errors.New("registry: credential can never match")
)
