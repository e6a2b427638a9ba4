package validate

const (
	DefaultListLimit int = 100
	MinListLimit     int = 1
	MaxListLimit     int = 1000
)

// ListLimit reports whether n is an acceptable page size.
func ListLimit(n int) bool {
	return n >= MinListLimit && n <= MaxListLimit
}
