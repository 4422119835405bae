package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dvloznov/orders-to-cash/internal/table"
)

func sampleTable(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.New("order_id", "transaction_index", "location_name", "item_quantity_count_5", "total_price_inc_vat_5")
	if err != nil {
		t.Fatal(err)
	}
	rows := [][]table.Value{
		{"A", int64(1), "London, Soho", int64(3), 6.3},
		{"A", int64(2), `The "Lab"`, nil, nil},
		{"B", int64(1), "", int64(0), 0.0},
	}
	for _, r := range rows {
		if err := tbl.Append(r...); err != nil {
			t.Fatal(err)
		}
	}
	return tbl
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleTable(t)); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	want := strings.Join([]string{
		"order_id,transaction_index,location_name,item_quantity_count_5,total_price_inc_vat_5",
		`A,1,"London, Soho",3,6.3`,
		`A,2,"The ""Lab""",,`,
		"B,1,,0,0",
		"",
	}, "\n")
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("WriteCSV() mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSV_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleTable(t)); err != nil {
		t.Fatal(err)
	}

	got, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if diff := cmp.Diff(sampleTable(t).Columns(), got.Columns()); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}

	want := []table.Row{
		{"A", "1", "London, Soho", "3", "6.3"},
		{"A", "2", `The "Lab"`, nil, nil},
		{"B", "1", nil, "0", "0"},
	}
	if diff := cmp.Diff(want, got.Rows()); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"ragged row", "a,b\n1,2,3\n"},
		{"duplicate header", "a,a\n1,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(tt.input)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestReadCSV_StripsBOM(t *testing.T) {
	got, err := ReadCSV(strings.NewReader("\uFEFForder_id\nA\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Has("order_id") {
		t.Errorf("columns = %v", got.Columns())
	}
}

func TestLocalSink_Write(t *testing.T) {
	root := t.TempDir()
	sink := NewLocalSink(root)

	loc, err := sink.Write(context.Background(), "braintree", "25.10 - Braintree DWH data.csv", sampleTable(t))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	want := filepath.Join(root, "01 Braintree", "03 DWH", "25.10 - Braintree DWH data.csv")
	if loc != want {
		t.Errorf("location = %q, want %q", loc, want)
	}

	f, err := os.Open(loc)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := ReadCSV(f)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 3 {
		t.Errorf("read back %d rows, want 3", got.Len())
	}

	entries, _ := os.ReadDir(filepath.Dir(loc))
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestLocalSink_Overwrites(t *testing.T) {
	root := t.TempDir()
	sink := NewLocalSink(root)
	ctx := context.Background()

	if _, err := sink.Write(ctx, "uber", "x.csv", sampleTable(t)); err != nil {
		t.Fatal(err)
	}
	empty, _ := table.New("order_id")
	loc, err := sink.Write(ctx, "uber", "x.csv", empty)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := os.ReadFile(loc)
	if string(b) != "order_id\n" {
		t.Errorf("file not replaced: %q", b)
	}
}

func TestLocalSink_UnknownProvider(t *testing.T) {
	sink := &LocalSink{Root: "/data"}
	if got, want := sink.Dir("booker"), filepath.Join("/data", "booker"); got != want {
		t.Errorf("Dir() = %q, want %q", got, want)
	}
}

// mockObjectStore is a mock implementation of gcs.ObjectStore.
type mockObjectStore struct {
	UploadFunc func(ctx context.Context, bucket, object, contentType string, r io.Reader) error

	mu      sync.Mutex
	objects map[string][]byte
}

func (m *mockObjectStore) Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) error {
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, bucket, object, contentType, r)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[bucket+"/"+object] = b
	return nil
}

func (m *mockObjectStore) Download(_ context.Context, bucket, object string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[bucket+"/"+object]
	if !ok {
		return nil, os.ErrNotExist
	}
	return b, nil
}

func TestObjectSink_Write(t *testing.T) {
	store := &mockObjectStore{}
	sink := NewObjectSink(store, "finance-exports", "Orders to Cash")

	loc, err := sink.Write(context.Background(), "justeat", "25.10 - Just Eat DWH data.csv", sampleTable(t))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	want := "gs://finance-exports/Orders to Cash/05 Just Eat/03 DWH/25.10 - Just Eat DWH data.csv"
	if loc != want {
		t.Errorf("location = %q, want %q", loc, want)
	}

	b, err := store.Download(context.Background(), "finance-exports", "Orders to Cash/05 Just Eat/03 DWH/25.10 - Just Eat DWH data.csv")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(b), "order_id,transaction_index,") {
		t.Errorf("unexpected object content: %q", b)
	}
}

func TestObjectSink_UploadFailure(t *testing.T) {
	boom := errors.New("permission denied")
	store := &mockObjectStore{UploadFunc: func(context.Context, string, string, string, io.Reader) error {
		return boom
	}}
	sink := NewObjectSink(store, "b", "")

	if _, err := sink.Write(context.Background(), "amazon", "x.csv", sampleTable(t)); !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}

func TestReadCSV_EmptyStringReadsBackAsMissing(t *testing.T) {
	tbl, _ := table.New("order_id", "location_name", "item_quantity_count_0")
	_ = tbl.Append("A", "", int64(0))
	_ = tbl.Append("B", nil, nil)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, tbl); err != nil {
		t.Fatal(err)
	}
	got, err := ReadCSV(&buf)
	if err != nil {
		t.Fatal(err)
	}

	want := []table.Row{
		{"A", nil, "0"},
		{"B", nil, nil},
	}
	if diff := cmp.Diff(want, got.Rows()); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}
