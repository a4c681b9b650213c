package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/directory-cli/internal/company"
	"github.com/sells-group/directory-cli/internal/upsert"
)

func TestBackfillSlugs(t *testing.T) {
	var recs []company.Record
	for i := 1; i <= 7; i++ {
		recs = append(recs, company.Record{
			ID:   company.ID(fmt.Sprint(i)),
			Name: fmt.Sprintf("Company %d", i),
			Slug: fmt.Sprintf("company-%d", i),
		})
	}
	recs[1].Slug = ""
	recs[5].Slug = "stale"
	recs[6].Name = "!!!"
	recs[6].Slug = ""

	st := newMemStore(recs...)
	w := upsert.NewWriter(st, upsert.Config{BatchSize: 100, BaseDelay: time.Second}, newClock())

	sum, err := BackfillSlugs(context.Background(), st, w, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, sum.Scanned)
	assert.Equal(t, 2, sum.Stale)
	assert.Equal(t, 2, sum.Upserts.Written)

	assert.Equal(t, "company-2", st.get("2").Slug)
	assert.Equal(t, "company-6", st.get("6").Slug)
	assert.Equal(t, "", st.get("7").Slug)
}

func TestBackfillSlugs_ListError(t *testing.T) {
	st := newMemStore()
	st.failList = true
	w := upsert.NewWriter(st, upsert.Config{}, newClock())

	_, err := BackfillSlugs(context.Background(), st, w, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list slugs")
}
