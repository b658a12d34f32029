package weft

// SelfValidator is implemented by request types that validate themselves,
// after tag constraints have passed.
type SelfValidator interface {
	Validate() error
}

// Validator validates any request. Set one router-wide with WithValidator.
type Validator interface {
	Validate(req any) error
}
