package codec

import "errors"

var (
	errShortBuffer    = errors.New("buffer shorter than declared length")
	errBadMagic       = errors.New("magic does not equal \"KDSK\"")
	errOddUTF16Length = errors.New("UTF-16LE payload has odd byte length")
)
