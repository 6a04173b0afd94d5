package cli

import (
	"fmt"
	"math"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/Dicklesworthstone/bigsort/internal/config"
)

// byteSizeValue is a pflag.Value for byte sizes. A bare number is read in
// unit; anything else goes through config.ParseByteSize.
type byteSizeValue struct {
	p    *config.ByteSize
	unit config.ByteSize
}

var _ pflag.Value = (*byteSizeValue)(nil)

func newByteSizeValue(p *config.ByteSize, unit config.ByteSize) *byteSizeValue {
	return &byteSizeValue{p: p, unit: unit}
}

func (v *byteSizeValue) Set(s string) error {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return fmt.Errorf("byte size %q is negative", s)
		}
		if n > math.MaxInt64/int64(v.unit) {
			return fmt.Errorf("byte size %q out of range", s)
		}
		*v.p = config.ByteSize(n) * v.unit
		return nil
	}
	b, err := config.ParseByteSize(s)
	if err != nil {
		return err
	}
	*v.p = b
	return nil
}

func (v *byteSizeValue) String() string {
	if v.p == nil || *v.p == 0 {
		return "0"
	}
	return v.p.String()
}

func (v *byteSizeValue) Type() string { return "size" }
