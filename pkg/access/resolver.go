// Package access computes which documents a user may read in a container.
package access

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"docchatai/pkg/domain"
)

// aclFetchConcurrency bounds parallel record lookups per resolution.
const aclFetchConcurrency = 8

// DocumentInventory lists the documents physically present in a container.
type DocumentInventory interface {
	ListObjects(ctx context.Context, container string) ([]string, error)
}

// RecordGetter fetches the access record for one document.
type RecordGetter interface {
	Get(container, fileName string) (domain.AccessRecord, bool, error)
}

// Resolver intersects the container's inventory with its access records.
type Resolver struct {
	inventory        DocumentInventory
	records          RecordGetter
	defaultContainer string
}

// NewResolver builds a resolver. defaultContainer names the public container
// where a document without a record is still treated as readable.
func NewResolver(inventory DocumentInventory, records RecordGetter, defaultContainer string) *Resolver {
	return &Resolver{
		inventory:        inventory,
		records:          records,
		defaultContainer: strings.TrimSpace(defaultContainer),
	}
}

// AccessibleDocuments returns the file names in container that userEmail may
// read, in inventory order. An empty userEmail yields an empty set: requests
// without a verified identity never see restricted or open documents.
func (r *Resolver) AccessibleDocuments(ctx context.Context, container, userEmail string) ([]string, error) {
	userEmail = strings.TrimSpace(userEmail)
	if userEmail == "" {
		return []string{}, nil
	}
	files, err := r.inventory.ListObjects(ctx, container)
	if err != nil {
		return nil, fmt.Errorf("list container %q: %w", container, err)
	}
	if len(files) == 0 {
		return []string{}, nil
	}

	// Record fetches are independent per document; results land by index so
	// the final set keeps inventory order regardless of completion order.
	allowed := make([]bool, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(aclFetchConcurrency)
	for i, fileName := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			record, found, err := r.records.Get(container, fileName)
			if err != nil {
				// A document whose record cannot be checked stays hidden.
				slog.Warn("access record fetch failed",
					"container", container, "file", fileName, "error", err)
				return nil
			}
			if !found {
				allowed[i] = r.isDefaultContainer(container)
				return nil
			}
			allowed[i] = record.Allows(userEmail)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve access in %q: %w", container, err)
	}

	result := make([]string, 0, len(files))
	for i, fileName := range files {
		if allowed[i] {
			result = append(result, fileName)
		}
	}
	return result, nil
}

func (r *Resolver) isDefaultContainer(container string) bool {
	return r.defaultContainer != "" && strings.EqualFold(container, r.defaultContainer)
}
