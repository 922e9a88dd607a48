package journal

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/kode4food/rewind"
)

type tee struct {
	journals []rewind.Journal
}

// Tee returns a Journal that appends every event to all of the given
// journals concurrently. A failing journal does not cancel the others.
// Reads are served by the first journal
func Tee(journals ...rewind.Journal) rewind.Journal {
	return &tee{journals: journals}
}

func (t *tee) Append(ctx context.Context, ev *rewind.Event) error {
	var g errgroup.Group
	for _, j := range t.journals {
		g.Go(func() error {
			return j.Append(ctx, ev)
		})
	}
	return g.Wait()
}

func (t *tee) Read(
	ctx context.Context, from rewind.Version,
) ([]*rewind.Event, error) {
	if len(t.journals) == 0 {
		return nil, nil
	}
	return t.journals[0].Read(ctx, from)
}

func (t *tee) Close() error {
	var errs []error
	for _, j := range t.journals {
		if err := j.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
