package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/opencontainers/go-digest"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content/oci"
	"oras.land/oras-go/v2/errdef"
	orasreg "oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/retry"
)

// Target names where an image goes.
type Target struct {
	// Ref is a full reference such as "ghcr.io/acme/shop:1.2.0".
	Ref       string
	PlainHTTP bool
}

// Pusher publishes image layouts. Implementations must be safe for
// concurrent use.
type Pusher interface {
	// Push copies the single image in layoutDir to t and returns its digest.
	Push(ctx context.Context, layoutDir string, t Target) (digest.Digest, error)
	// Exists reports whether t already resolves to d.
	Exists(ctx context.Context, t Target, d digest.Digest) (bool, error)
}

// ORAS is a Pusher backed by oras-go. Credentials come from the docker
// credential store unless Credential is set.
type ORAS struct {
	Credential auth.CredentialFunc
}

// NewORAS returns a Pusher using the local docker credential store.
func NewORAS() (*ORAS, error) {
	store, err := credentials.NewStoreFromDocker(credentials.StoreOptions{})
	if err != nil {
		return nil, fmt.Errorf("docker credential store: %w", err)
	}
	return &ORAS{Credential: credentials.Credential(store)}, nil
}

// ParseTarget splits t.Ref into a repository and tag, rejecting references
// without a tag.
func ParseTarget(t Target) (orasreg.Reference, error) {
	ref, err := orasreg.ParseReference(t.Ref)
	if err != nil {
		return orasreg.Reference{}, fmt.Errorf("invalid image reference %q: %w", t.Ref, err)
	}
	if ref.Reference == "" {
		return orasreg.Reference{}, fmt.Errorf("invalid image reference %q: missing tag", t.Ref)
	}
	return ref, nil
}

func (o *ORAS) repository(t Target) (*remote.Repository, orasreg.Reference, error) {
	ref, err := ParseTarget(t)
	if err != nil {
		return nil, orasreg.Reference{}, err
	}
	repo, err := remote.NewRepository(ref.Registry + "/" + ref.Repository)
	if err != nil {
		return nil, orasreg.Reference{}, err
	}
	repo.PlainHTTP = t.PlainHTTP
	client := &auth.Client{
		Client: retry.DefaultClient,
		Cache:  auth.NewCache(),
	}
	if o != nil && o.Credential != nil {
		client.Credential = o.Credential
	}
	repo.Client = client
	return repo, ref, nil
}

// Push implements Pusher.
func (o *ORAS) Push(ctx context.Context, layoutDir string, t Target) (digest.Digest, error) {
	desc, err := LayoutManifest(layoutDir)
	if err != nil {
		return "", err
	}
	src, err := oci.New(layoutDir)
	if err != nil {
		return "", fmt.Errorf("open layout: %w", err)
	}
	repo, ref, err := o.repository(t)
	if err != nil {
		return "", err
	}
	pushed, err := oras.Copy(ctx, src, desc.Digest.String(), repo, ref.Reference, oras.DefaultCopyOptions)
	if err != nil {
		return "", fmt.Errorf("push %s: %w", t.Ref, err)
	}
	return pushed.Digest, nil
}

// Exists implements Pusher.
func (o *ORAS) Exists(ctx context.Context, t Target, d digest.Digest) (bool, error) {
	repo, ref, err := o.repository(t)
	if err != nil {
		return false, err
	}
	desc, err := repo.Resolve(ctx, ref.Reference)
	if err != nil {
		if errors.Is(err, errdef.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("resolve %s: %w", t.Ref, err)
	}
	return desc.Digest == d, nil
}
