package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/repository"
	"github.com/FACorreiaa/cbhpm-tables/internal/domain/import/normalizer"
	"github.com/FACorreiaa/cbhpm-tables/internal/domain/import/resolver"
	"github.com/FACorreiaa/cbhpm-tables/pkg/metrics"
)

// latin1Table is a semicolon export saved as ISO-8859-1 ("Código", "Descrição").
var latin1Table = []byte("C\xf3digo;Descri\xe7\xe3o;Porte;UCO;Filme\r\n10101012;Consulta;100,50;2,0;0\r\n")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService() (*ImportService, *repository.MemoryCatalogRepository) {
	repo := repository.NewMemoryCatalogRepository()
	return NewImportService(repo, testLogger()), repo
}

type failingStore struct {
	*repository.MemoryCatalogRepository
	insertErr error
	existsErr error
}

func (s *failingStore) InsertProcedures(ctx context.Context, ps []repository.Procedure) (int, error) {
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	return s.MemoryCatalogRepository.InsertProcedures(ctx, ps)
}

func (s *failingStore) FingerprintExists(ctx context.Context, fp string) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.MemoryCatalogRepository.FingerprintExists(ctx, fp)
}

func TestImportFiles_Latin1Semicolon(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	report, err := svc.ImportFiles(ctx, []File{{Name: "cbhpm2022.csv", Data: latin1Table}}, "2022")
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.Equal(t, 1, report.Processed)

	res := report.Files[0]
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	assert.Equal(t, "latin-1", res.Encoding)
	assert.Equal(t, ";", res.Delimiter)
	assert.Equal(t, 1, res.RowsInserted)
	assert.Equal(t, Fingerprint(latin1Table), res.Fingerprint)

	p, err := repo.GetProcedure(ctx, "10101012", "2022")
	require.NoError(t, err)
	assert.Equal(t, "Consulta", p.Description)
	assert.Equal(t, 100.5, p.SurgicalValue)
	assert.Equal(t, 2.0, p.RelativeUnitValue)
	assert.Equal(t, 0.0, p.FilmQuantity)
	assert.Equal(t, 1, repo.Count())
}

func TestImportFiles_DescriptionMentionsHeaderWords(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	data := []byte("Codigo;Procedimento;Porte\n1;Consulta;10\n2;Filme e porte do procedimento com UCO;20\n3;Outro;30\n")

	report, err := svc.ImportFiles(ctx, []File{{Name: "t.csv", Data: data}}, "2022")
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.Equal(t, OutcomeProcessed, report.Files[0].Outcome, report.Files[0].Message)
	assert.Equal(t, 3, report.Files[0].RowsInserted)

	p, err := repo.GetProcedure(ctx, "1", "2022")
	require.NoError(t, err)
	assert.Equal(t, "Consulta", p.Description)
}

func TestImportFiles_SameBytesAnotherVersion(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	_, err := svc.ImportFiles(ctx, []File{{Name: "a.csv", Data: latin1Table}}, "2022")
	require.NoError(t, err)

	report, err := svc.ImportFiles(ctx, []File{{Name: "renamed.csv", Data: latin1Table}}, "2023")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, OutcomeAlreadyImported, report.Files[0].Outcome)

	_, err = repo.GetProcedure(ctx, "10101012", "2023")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, 1, repo.Count())
}

func TestImportFiles_MissingDescriptionColumn(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	broken := []byte("Código;Valor;UCO\n10101012;100,00;1\n")
	good := []byte("Código;Procedimento;Porte\n20101015;Avaliação;50\n")

	report, err := svc.ImportFiles(ctx, []File{
		{Name: "broken.csv", Data: broken},
		{Name: "good.csv", Data: good},
	}, "2022")
	require.NoError(t, err)
	require.Len(t, report.Files, 2)

	assert.Equal(t, OutcomeMissingColumns, report.Files[0].Outcome)
	assert.Equal(t, []resolver.Field{resolver.FieldDescription}, report.Files[0].MissingColumns)
	assert.Equal(t, OutcomeProcessed, report.Files[1].Outcome)
	assert.Equal(t, 1, report.Processed)

	_, err = repo.GetProcedure(ctx, "10101012", "2022")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.GetProcedure(ctx, "20101015", "2022")
	assert.NoError(t, err)

	// rejected files are not fingerprinted and can be retried once fixed
	exists, err := repo.FingerprintExists(ctx, Fingerprint(broken))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestImportFiles_UnparseableNumberDefaultsToZero(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	data := []byte("Código;Descrição;Porte;UCO;Filme\n10101012;Consulta;100,50;abc;1,5\n")
	report, err := svc.ImportFiles(ctx, []File{{Name: "t.csv", Data: data}}, "2022")
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, report.Files[0].Outcome)

	p, err := repo.GetProcedure(ctx, "10101012", "2022")
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.RelativeUnitValue)
	assert.Equal(t, 100.5, p.SurgicalValue)
	assert.Equal(t, 1.5, p.FilmQuantity)
}

func TestImportFiles_UnresolvedNumericColumns(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	data := []byte("Código;Descrição\n10101012;Consulta\n")
	report, err := svc.ImportFiles(ctx, []File{{Name: "t.csv", Data: data}}, "2022")
	require.NoError(t, err)

	res := report.Files[0]
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	assert.ElementsMatch(t, resolver.NumericFields, res.UnresolvedNumeric)

	p, err := repo.GetProcedure(ctx, "10101012", "2022")
	require.NoError(t, err)
	assert.Zero(t, p.SurgicalValue)
	assert.Zero(t, p.RelativeUnitValue)
	assert.Zero(t, p.FilmQuantity)
}

func TestImportFiles_SkipsAndDuplicates(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	data := []byte("Código;Descrição;Porte\n" +
		"10101012;Consulta;10\n" +
		";Sem código;5\n" +
		"10101020;;5\n" +
		"10101012;Repetido;99\n" +
		"10101039;Outro;7\n")

	report, err := svc.ImportFiles(ctx, []File{{Name: "t.csv", Data: data}}, "2022")
	require.NoError(t, err)

	res := report.Files[0]
	assert.Equal(t, 5, res.RowsRead)
	assert.Equal(t, 2, res.RowsSkipped)
	assert.Equal(t, 3, res.RowsNormalized)
	assert.Equal(t, 1, res.RowsDuplicate)
	assert.Equal(t, 2, res.RowsInserted)

	p, err := repo.GetProcedure(ctx, "10101012", "2022")
	require.NoError(t, err)
	assert.Equal(t, "Consulta", p.Description)
}

func TestImportFiles_ExistingRowsAreNeverOverwritten(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	first := []byte("Código;Descrição;Porte\n10101012;Consulta;10\n")
	second := []byte("Código;Descrição;Porte\n10101012;Consulta revisada;20\n10101020;Nova;5\n")

	_, err := svc.ImportFiles(ctx, []File{{Name: "a.csv", Data: first}}, "2022")
	require.NoError(t, err)
	report, err := svc.ImportFiles(ctx, []File{{Name: "b.csv", Data: second}}, "2022")
	require.NoError(t, err)

	res := report.Files[0]
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	assert.Equal(t, 1, res.RowsInserted)
	assert.Equal(t, 1, res.RowsDuplicate)

	p, err := repo.GetProcedure(ctx, "10101012", "2022")
	require.NoError(t, err)
	assert.Equal(t, "Consulta", p.Description)
	assert.Equal(t, 10.0, p.SurgicalValue)
	assert.Equal(t, 2, repo.Count())
}

func TestImportFiles_Idempotent(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	files := []File{
		{Name: "a.csv", Data: latin1Table},
		{Name: "b.csv", Data: []byte("Código;Descrição\n30101018;Cirurgia\n")},
	}

	first, err := svc.ImportFiles(ctx, files, "2022")
	require.NoError(t, err)
	assert.Equal(t, 2, first.Processed)
	count := repo.Count()

	second, err := svc.ImportFiles(ctx, files, "2022")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 2, second.Count(OutcomeAlreadyImported))
	assert.Equal(t, count, repo.Count())
}

func TestImportFiles_SameFileTwiceInOneCall(t *testing.T) {
	svc, _ := newTestService()

	report, err := svc.ImportFiles(context.Background(), []File{
		{Name: "a.csv", Data: latin1Table},
		{Name: "copy.csv", Data: latin1Table},
	}, "2022")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, OutcomeAlreadyImported, report.Files[1].Outcome)
}

func TestImportFiles_InvalidVersion(t *testing.T) {
	svc, repo := newTestService()

	for _, version := range []string{"", "   "} {
		report, err := svc.ImportFiles(context.Background(), []File{{Name: "a.csv", Data: latin1Table}}, version)
		assert.ErrorIs(t, err, ErrInvalidVersionLabel)
		assert.Nil(t, report)
	}
	assert.Zero(t, repo.Count())
}

func TestImportFiles_ReadErrors(t *testing.T) {
	svc, _ := newTestService()

	report, err := svc.ImportFiles(context.Background(), []File{
		{Name: "empty.csv", Data: []byte("  \n")},
		{Name: "legacy.xls", Data: []byte{0xD0, 0xCF, 0x11, 0xE0}},
		{Name: "broken.xlsx", Data: []byte("PK not really a zip")},
	}, "2022")
	require.NoError(t, err)
	for _, f := range report.Files {
		assert.Equal(t, OutcomeReadError, f.Outcome, f.Name)
		assert.NotEmpty(t, f.Message)
	}
	assert.Zero(t, report.Processed)
}

func TestImportFiles_StoreFailureLeavesFileRetryable(t *testing.T) {
	store := &failingStore{
		MemoryCatalogRepository: repository.NewMemoryCatalogRepository(),
		insertErr:               errors.New("connection reset"),
	}
	svc := NewImportService(store, testLogger())
	ctx := context.Background()

	report, err := svc.ImportFiles(ctx, []File{{Name: "a.csv", Data: latin1Table}}, "2022")
	require.NoError(t, err)
	assert.Equal(t, OutcomeStoreError, report.Files[0].Outcome)
	assert.Contains(t, report.Files[0].Message, "connection reset")

	exists, err := store.FingerprintExists(ctx, Fingerprint(latin1Table))
	require.NoError(t, err)
	assert.False(t, exists)

	store.insertErr = nil
	report, err = svc.ImportFiles(ctx, []File{{Name: "a.csv", Data: latin1Table}}, "2022")
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, report.Files[0].Outcome)
}

func TestImportFiles_FingerprintLookupFailure(t *testing.T) {
	store := &failingStore{
		MemoryCatalogRepository: repository.NewMemoryCatalogRepository(),
		existsErr:               errors.New("timeout"),
	}
	svc := NewImportService(store, testLogger())

	report, err := svc.ImportFiles(context.Background(), []File{{Name: "a.csv", Data: latin1Table}}, "2022")
	require.NoError(t, err)
	assert.Equal(t, OutcomeStoreError, report.Files[0].Outcome)
	assert.Zero(t, store.Count())
}

func TestImportFiles_Notifier(t *testing.T) {
	svc, _ := newTestService()
	var events []ImportEvent
	svc.WithNotifier(NotifierFunc(func(_ context.Context, e ImportEvent) error {
		events = append(events, e)
		return errors.New("ignored")
	}))
	ctx := context.Background()

	report, err := svc.ImportFiles(ctx, []File{{Name: "a.csv", Data: latin1Table}}, "2022")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, report.RunID, events[0].RunID)
	assert.Equal(t, 1, events[0].Processed)
	assert.Equal(t, 1, events[0].RowsInserted)
	require.Len(t, events[0].Files, 1)
	assert.Equal(t, latin1Table, events[0].Files[0].Data)

	// nothing processed, nothing sent
	_, err = svc.ImportFiles(ctx, []File{{Name: "a.csv", Data: latin1Table}}, "2022")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestImportFiles_CustomAliasesAndNumberMode(t *testing.T) {
	svc, repo := newTestService()
	svc.WithAliases(resolver.DefaultAliases.With(resolver.FieldSurgicalValue, "Honorário")).
		WithNumberMode(normalizer.DetectDotDecimal)
	ctx := context.Background()

	data := []byte("Código;Descrição;Honorário\n10101012;Consulta;100.50\n")
	_, err := svc.ImportFiles(ctx, []File{{Name: "t.csv", Data: data}}, "2022")
	require.NoError(t, err)

	p, err := repo.GetProcedure(ctx, "10101012", "2022")
	require.NoError(t, err)
	assert.Equal(t, 100.5, p.SurgicalValue)
}

func TestImportFiles_Metrics(t *testing.T) {
	svc, _ := newTestService()
	m := metrics.NewImportMetrics(prometheus.NewRegistry())
	svc.WithMetrics(m)

	_, err := svc.ImportFiles(context.Background(), []File{
		{Name: "a.csv", Data: latin1Table},
		{Name: "a.csv", Data: latin1Table},
	}, "2022")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Files().WithLabelValues("processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Files().WithLabelValues("already_imported")))
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Fingerprint(nil))
	assert.NotEqual(t, Fingerprint([]byte("a")), Fingerprint([]byte("b")))
}
