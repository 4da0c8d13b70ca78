package test

import (
	"github.com/google/go-cmp/cmp"

	condacore "github.com/conda-incubator/condacore"
)

// CompareDigests allows for comparing [condacore.Digest] objects.
var CompareDigests = cmp.Options{
	cmp.Transformer("MarshalDigest", marshalDigest),
	cmp.Transformer("MarshalDigestPointer", marshalDigestPointer),
}

// CmpOptions is a bundle of [cmp.Option] for [condacore] types.
var CmpOptions = cmp.Options{
	CompareDigests,
}

func marshalDigest(d condacore.Digest) string         { return marshalDigestPointer(&d) }
func marshalDigestPointer(d *condacore.Digest) string { return d.String() }
