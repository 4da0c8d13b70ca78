package pkgcache

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/openpgp"

	condacore "github.com/conda-incubator/condacore"
)

// VerifySignature checks the detached OpenPGP signature at sigPath against
// tarballPath using keyring, conda's optional package-signing story
// (disabled unless a keyring is configured; see SPEC_FULL.md §4.5).
func VerifySignature(keyring openpgp.EntityList, tarballPath, sigPath string) error {
	tarball, err := os.Open(tarballPath)
	if err != nil {
		return &condacore.Error{Kind: condacore.ErrTransient, Op: "pkgcache.VerifySignature", Inner: err}
	}
	defer tarball.Close()

	sig, err := os.Open(sigPath)
	if err != nil {
		return &condacore.Error{Kind: condacore.ErrTransient, Op: "pkgcache.VerifySignature", Inner: err}
	}
	defer sig.Close()

	if _, err := openpgp.CheckDetachedSignature(keyring, tarball, sig, nil); err != nil {
		return &condacore.Error{
			Kind:    condacore.ErrPermanent,
			Op:      condacore.OpSafetyError,
			Message: fmt.Sprintf("signature verification failed for %s", tarballPath),
			Inner:   err,
		}
	}
	return nil
}

// LoadKeyring reads an armored OpenPGP public keyring from r.
func LoadKeyring(r io.Reader) (openpgp.EntityList, error) {
	return openpgp.ReadArmoredKeyRing(r)
}
