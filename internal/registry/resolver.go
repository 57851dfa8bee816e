package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/trigg3rX/labelmarket-backend/internal/decoder"
	"github.com/trigg3rX/labelmarket-backend/internal/metrics"
	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
	"github.com/trigg3rX/labelmarket-backend/pkg/env"
	"github.com/trigg3rX/labelmarket-backend/pkg/ledger"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
)

const DefaultConcurrency = 8

// Source tells consumers which path produced a listing.
type Source string

const (
	// SourceRegistry is the authoritative path through the registry tables.
	SourceRegistry Source = "registry"
	// SourceOwnerScan only sees objects currently owned by one address.
	SourceOwnerScan Source = "owner_scan"
)

// Listing is the result of a set query. Complete is false for owner scans.
type Listing[T any] struct {
	Items    []T    `json:"items"`
	Source   Source `json:"source"`
	Complete bool   `json:"complete"`
	Skipped  int    `json:"skipped"`
}

type Config struct {
	PackageID   string
	RegistryID  string
	Concurrency int
}

func (c *Config) Validate() error {
	if !env.IsValidObjectID(c.PackageID) {
		return fmt.Errorf("invalid package id %q", c.PackageID)
	}
	if !env.IsValidObjectID(c.RegistryID) {
		return fmt.Errorf("invalid registry id %q", c.RegistryID)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must be >= 0")
	}
	return nil
}

// Resolver answers set queries over the registry's tables using only point lookups.
type Resolver struct {
	client ledger.Client
	config Config
	logger logging.Logger
}

func NewResolver(client ledger.Client, cfg Config, logger logging.Logger) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Resolver{client: client, config: cfg, logger: logger}, nil
}

func (r *Resolver) PackageID() string {
	return r.config.PackageID
}

// Registry fetches and decodes the root registry object.
func (r *Resolver) Registry(ctx context.Context) (*decoder.Registry, error) {
	obj, err := r.client.GetObject(ctx, r.config.RegistryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	return decoder.DecodeRegistry(obj)
}

func (r *Resolver) table(ctx context.Context, kind string) (decoder.Table, error) {
	reg, err := r.Registry(ctx)
	if err != nil {
		return decoder.Table{}, err
	}
	return reg.TableFor(kind)
}

type decodeFunc[T any] func(*ledger.Object) (T, error)

// resolveAll lists the kind's table keys, then resolves each key with the two-hop lookup.
// Entries that fail to resolve are skipped and counted; only cancellation aborts the listing.
func resolveAll[T any](ctx context.Context, r *Resolver, kind string, decode decodeFunc[T]) (*Listing[T], error) {
	table, err := r.table(ctx, kind)
	if err != nil {
		return nil, err
	}
	fields, err := r.client.ListDynamicFields(ctx, table.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s table: %w", kind, err)
	}

	results := make([]T, len(fields))
	resolved := make([]bool, len(fields))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Concurrency)
	for i := range fields {
		i := i
		g.Go(func() error {
			entity, err := resolveEntry(gctx, r, kind, table.ID, fields[i].Name, decode)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				r.skip(kind, fields[i].Name, err)
				return nil
			}
			results[i] = entity
			resolved[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	listing := &Listing[T]{Items: make([]T, 0, len(fields)), Source: SourceRegistry, Complete: true}
	for i := range results {
		if resolved[i] {
			listing.Items = append(listing.Items, results[i])
		} else {
			listing.Skipped++
		}
	}
	return listing, nil
}

// resolveOne returns ErrNotFound when the key is absent or its target object is gone.
func resolveOne[T any](ctx context.Context, r *Resolver, kind string, key ledger.DynamicFieldName, decode decodeFunc[T]) (T, error) {
	var zero T
	table, err := r.table(ctx, kind)
	if err != nil {
		return zero, err
	}
	return resolveEntry(ctx, r, kind, table.ID, key, decode)
}

func resolveEntry[T any](ctx context.Context, r *Resolver, kind, tableID string, key ledger.DynamicFieldName, decode decodeFunc[T]) (T, error) {
	var zero T
	entry, err := r.client.GetDynamicField(ctx, tableID, key)
	if err != nil {
		return zero, &entryError{reason: reasonFor(err, "missing_entry"), err: err}
	}
	addr, err := decoder.DecodeTableEntry(entry)
	if err != nil {
		return zero, &entryError{reason: "decode", err: err}
	}
	obj, err := r.client.GetObject(ctx, addr)
	if err != nil {
		return zero, &entryError{reason: reasonFor(err, "missing_object"), err: err}
	}
	entity, err := decode(obj)
	if err != nil {
		return zero, &entryError{reason: "decode", err: err}
	}
	return entity, nil
}

// resolveByOwner bypasses the registry and scans objects owned by owner. The result only
// covers objects the address currently owns and is marked incomplete.
func resolveByOwner[T any](ctx context.Context, r *Resolver, owner, kind string, decode decodeFunc[T]) (*Listing[T], error) {
	metrics.RegistryOwnerScansTotal.WithLabelValues(kind).Inc()

	objects, err := r.client.ListOwnedObjects(ctx, normalize(owner), decoder.StructType(r.config.PackageID, kind))
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s objects owned by %s: %w", kind, owner, err)
	}
	listing := &Listing[T]{Items: make([]T, 0, len(objects)), Source: SourceOwnerScan, Complete: false}
	for _, obj := range objects {
		entity, err := decode(obj)
		if err != nil {
			r.skip(kind, ledger.DynamicFieldName{Type: "object", Value: obj.ID}, &entryError{reason: "decode", err: err})
			listing.Skipped++
			continue
		}
		listing.Items = append(listing.Items, entity)
	}
	return listing, nil
}

func (r *Resolver) skip(kind string, key ledger.DynamicFieldName, err error) {
	reason := "read_error"
	var entryErr *entryError
	if errors.As(err, &entryErr) {
		reason = entryErr.reason
	}
	metrics.RegistrySkippedEntriesTotal.WithLabelValues(kind, reason).Inc()
	r.logger.Warn("Skipping registry entry", "kind", kind, "key", key.String(), "reason", reason, "error", err)
}

// entryError tags a failed lookup with the reason it is skipped in listings.
type entryError struct {
	reason string
	err    error
}

func (e *entryError) Error() string {
	return e.err.Error()
}

func (e *entryError) Unwrap() error {
	return e.err
}

func reasonFor(err error, notFoundReason string) string {
	if pkgErrors.IsNotFound(err) {
		return notFoundReason
	}
	return "read_error"
}

func u64Key(n uint64) ledger.DynamicFieldName {
	return ledger.DynamicFieldName{Type: "u64", Value: strconv.FormatUint(n, 10)}
}

// addressKey uses the node's canonical 32-byte address form.
func addressKey(addr string) ledger.DynamicFieldName {
	return ledger.DynamicFieldName{Type: "address", Value: env.NormalizeObjectID(addr)}
}

func normalize(addr string) string {
	return env.NormalizeObjectID(addr)
}
