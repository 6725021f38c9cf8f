package idgen

import (
	"github.com/google/uuid"
)

// ID prefixes for different models
const (
	PrefixPublication = "pub_"
	PrefixJob         = "job_"
)

// NewPublication generates a new publication ID with pub_ prefix
func NewPublication() string {
	return PrefixPublication + uuid.New().String()
}

// NewJob generates a new bulk publish job ID with job_ prefix
func NewJob() string {
	return PrefixJob + uuid.New().String()
}

// New generates a generic UUID without prefix (for internal use only)
func New() string {
	return uuid.New().String()
}
