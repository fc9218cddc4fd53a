// Package catalog imports and exports the orderable catalog (plans,
// datacenters, OS templates, promo codes) as YAML.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/artpar/panel/internal/core/domain"
	"github.com/artpar/panel/internal/core/pricing"
	"github.com/artpar/panel/internal/shell/store"
	"gopkg.in/yaml.v3"
)

// ErrInvalidCatalog is returned when a catalog document fails to parse or validate.
var ErrInvalidCatalog = errors.New("invalid catalog")

// File is the on-disk catalog document.
type File struct {
	Plans       []domain.Plan       `yaml:"plans,omitempty"`
	Datacenters []domain.Datacenter `yaml:"datacenters,omitempty"`
	OSTemplates []domain.OSTemplate `yaml:"os_templates,omitempty"`
	PromoCodes  []pricing.PromoCode `yaml:"promo_codes,omitempty"`
}

// Summary counts what an import wrote.
type Summary struct {
	Plans       int
	Datacenters int
	OSTemplates int
	PromoCodes  int
}

// Parse decodes and validates a catalog document. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFile parses the catalog at path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Validate checks every entry and rejects duplicate keys.
func (f *File) Validate() error {
	seen := make(map[string]struct{})
	dup := func(kind, key string) error {
		k := kind + "/" + key
		if _, ok := seen[k]; ok {
			return fmt.Errorf("%w: duplicate %s %q", ErrInvalidCatalog, kind, key)
		}
		seen[k] = struct{}{}
		return nil
	}

	for _, p := range f.Plans {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: plan %q: %v", ErrInvalidCatalog, p.ID, err)
		}
		if err := dup("plan", p.ID); err != nil {
			return err
		}
	}
	for _, dc := range f.Datacenters {
		if dc.Name == "" || dc.Code == "" {
			return fmt.Errorf("%w: datacenter needs name and code", ErrInvalidCatalog)
		}
		if err := dup("datacenter", dc.Name); err != nil {
			return err
		}
		if err := dup("datacenter code", dc.Code); err != nil {
			return err
		}
	}
	for _, t := range f.OSTemplates {
		if t.Name == "" {
			return fmt.Errorf("%w: OS template needs a name", ErrInvalidCatalog)
		}
		if _, err := domain.ParseFamily(string(t.Family)); err != nil {
			return fmt.Errorf("%w: OS template %q: %v", ErrInvalidCatalog, t.Name, err)
		}
		if err := dup("os template", t.Name); err != nil {
			return err
		}
	}
	for _, p := range f.PromoCodes {
		normalized, err := pricing.NewPromoCode(p.Code, p.DiscountPercent)
		if err != nil {
			return fmt.Errorf("%w: promo code %q: %v", ErrInvalidCatalog, p.Code, err)
		}
		if err := dup("promo code", normalized.Code); err != nil {
			return err
		}
	}
	return nil
}

// Import upserts every entry in one transaction.
func Import(ctx context.Context, s store.Store, f *File) (Summary, error) {
	var sum Summary
	err := s.WithTx(ctx, func(tx store.Store) error {
		for i := range f.Plans {
			if err := tx.UpsertPlan(ctx, &f.Plans[i]); err != nil {
				return err
			}
			sum.Plans++
		}
		for i := range f.Datacenters {
			if err := tx.UpsertDatacenter(ctx, &f.Datacenters[i]); err != nil {
				return err
			}
			sum.Datacenters++
		}
		for i := range f.OSTemplates {
			if err := tx.UpsertOSTemplate(ctx, &f.OSTemplates[i]); err != nil {
				return err
			}
			sum.OSTemplates++
		}
		for i := range f.PromoCodes {
			if err := tx.UpsertPromoCode(ctx, &f.PromoCodes[i]); err != nil {
				return err
			}
			sum.PromoCodes++
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}

// Export reads the whole catalog from the store.
func Export(ctx context.Context, s store.Store) (*File, error) {
	plans, err := s.ListPlans(ctx)
	if err != nil {
		return nil, err
	}
	dcs, err := s.ListDatacenters(ctx)
	if err != nil {
		return nil, err
	}
	templates, err := s.ListOSTemplates(ctx, "")
	if err != nil {
		return nil, err
	}
	promos, err := s.ListPromoCodes(ctx)
	if err != nil {
		return nil, err
	}
	return &File{Plans: plans, Datacenters: dcs, OSTemplates: templates, PromoCodes: promos}, nil
}

// Write encodes the catalog as YAML.
func (f *File) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return err
	}
	return enc.Close()
}
