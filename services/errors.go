package services

import "errors"

// Shared errors used across services and the HTTP mapping layer.
var (
	// Missing resources
	ErrUserNotFound    = errors.New("user not found")
	ErrTeamNotFound    = errors.New("team not found")
	ErrRequestNotFound = errors.New("join request not found")
	ErrChannelNotFound = errors.New("payment channel not found")
	ErrAdminNotFound   = errors.New("admin not found")

	// Unique-constraint conflicts
	ErrEmailConflict    = errors.New("email address is already registered")
	ErrPhoneConflict    = errors.New("phone number is already registered")
	ErrRegNoConflict    = errors.New("registration number is already registered")
	ErrTeamNameConflict = errors.New("squad name is already taken")
	// ErrJoinCodeConflict is the transient code-generation collision; the
	// roster manager retries once before surfacing it.
	ErrJoinCodeConflict = errors.New("could not generate a unique join code")

	// Business rules
	ErrTeamFull                = errors.New("squad is full")
	ErrInvalidCapacity         = errors.New("squad capacity cannot be lower than current member count")
	ErrUserAlreadyInTeam       = errors.New("user is already in a squad")
	ErrUserNotOnTeam           = errors.New("user is not a member of this squad")
	ErrCannotRemoveLeader      = errors.New("cannot remove the squad leader; disband the squad instead")
	ErrLeaderCannotLeave       = errors.New("the squad leader cannot leave; disband the squad instead")
	ErrLeaderActionForbidden   = errors.New("only the squad leader can perform this action")
	ErrRequestAlreadyResolved  = errors.New("join request has already been resolved")
	ErrNoChannelAvailable      = errors.New("no payment channel available for this amount")
	ErrInvalidStatusTransition = errors.New("illegal payment status transition")
	ErrInvalidPaymentMode      = errors.New("invalid payment mode")

	// Validation
	ErrTeamNameRequired = errors.New("squad name is required")
	ErrPasswordTooShort = errors.New("password is too short")

	// Authentication
	ErrInvalidCredentials = errors.New("invalid email or password")
)
