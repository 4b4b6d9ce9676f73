//go:build !linux

package affinity

import "github.com/pkg/errors"

func setAffinity(cpu int) error {
	return errors.Wrapf(ErrUnsupported, "pin to cpu %d", cpu)
}

// Allowed is not available off Linux.
func Allowed() ([]int, error) {
	return nil, ErrUnsupported
}
