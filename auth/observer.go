package auth

// Observer receives auth progress at defined points. Implementations plug in
// the CLI, the daemon, or tests.
type Observer interface {
	MFARequired(devices int, phones []TrustedPhone)
	MFASent(method string)
	Authenticated()
	Ready()
	Warning(msg string)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) MFARequired(int, []TrustedPhone) {}
func (NopObserver) MFASent(string)                  {}
func (NopObserver) Authenticated()                  {}
func (NopObserver) Ready()                          {}
func (NopObserver) Warning(string)                  {}
