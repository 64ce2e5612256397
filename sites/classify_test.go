package sites

import (
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/tracuuvn/tracuu/config"
	"github.com/tracuuvn/tracuu/types"
)

var classifyForm = config.QueryForm{
	Result:  "table.results tr.row",
	Empty:   "div.no-data",
	Failure: "div.error",
}

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestClassifySingleRow(t *testing.T) {
	doc := mustDoc(t, `<html><body>
		<table class="results"><tr class="row"><td>30A-12345</td></tr></table>
	</body></html>`)

	out, err := classify(doc, classifyForm)
	require.NoError(t, err)
	require.Equal(t, types.StatusSuccess, out.Status)
	require.True(t, out.ResultVisible)
}

func TestClassifyMultipleRowsKeepsAmbiguityVisible(t *testing.T) {
	doc := mustDoc(t, `<html><body>
		<table class="results">
			<tr class="row"><td>30A-12345</td></tr>
			<tr class="row"><td>30A-12346</td></tr>
		</table>
	</body></html>`)

	out, err := classify(doc, classifyForm)
	require.NoError(t, err)
	require.Equal(t, types.StatusSuccess, out.Status)
	require.Contains(t, out.Message, "2 matching rows")
}

func TestClassifyEmptyAnswer(t *testing.T) {
	doc := mustDoc(t, `<html><body><div class="no-data">Không có dữ liệu</div></body></html>`)

	out, err := classify(doc, classifyForm)
	require.NoError(t, err)
	require.Equal(t, types.StatusPermanentFailure, out.Status)
	require.Equal(t, "no matching records", out.Message)
	require.True(t, out.ResultVisible)
}

func TestClassifySiteError(t *testing.T) {
	doc := mustDoc(t, `<html><body><div class="error">Lỗi hệ thống</div></body></html>`)

	out, err := classify(doc, classifyForm)
	require.NoError(t, err)
	require.Equal(t, types.StatusPermanentFailure, out.Status)
}

func TestClassifyUnknownPage(t *testing.T) {
	doc := mustDoc(t, `<html><body><h1>Maintenance</h1></body></html>`)

	_, err := classify(doc, classifyForm)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUIChanged))
}

func TestForProfileClosedSet(t *testing.T) {
	for _, id := range []string{SiteSTP, SiteDSNC, SiteCENM, SiteTCWeb} {
		a, err := ForProfile(config.SiteProfile{ID: id})
		require.NoError(t, err)
		require.Equal(t, id, a.ID())
	}
	_, err := ForProfile(config.SiteProfile{ID: "other"})
	require.True(t, errors.Is(err, ErrUnknownSite))
}
