package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/nfe-panel/internal/core"
	"gopkg.in/yaml.v3"
)

func invoiceXML(number, value string) string {
	return fmt.Sprintf(`<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe"><NFe><infNFe>`+
		`<ide><nNF>%s</nNF></ide><emit><xNome>ACME</xNome></emit>`+
		`<total><ICMSTot><vNF>%s</vNF></ICMSTot></total></infNFe></NFe></nfeProc>`, number, value)
}

// writeFiles creates name→content files under a temp dir and returns it.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// run executes nfectl with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")

	var stdout, stderr bytes.Buffer
	root := NewRootCmd(&stdout, &stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

// ============================================================================
// ingest
// ============================================================================

func TestIngest_JSON(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.xml":        invoiceXML("1", "10"),
		"b.xml":        invoiceXML("2", "2.5"),
		"notes.txt":    "ignored",
		"sub/c.XML":    invoiceXML("3", "1"),
		"sub/dup.xml":  invoiceXML("1", "99"),
		"sub/oops.xml": "<nfeProc>",
	})

	out, err := run(t, "ingest", "-o", "json", dir)
	if err != nil {
		t.Fatalf("ingest error = %v", err)
	}

	var report Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}

	// Lexical walk order: a, b, sub/c, sub/dup, sub/oops. Newest first.
	var got []string
	for _, e := range report.Entries {
		got = append(got, e.InvoiceNumber)
	}
	if strings.Join(got, ",") != "3,2,1" {
		t.Errorf("entries = %v, want 3,2,1", got)
	}
	if report.Stats.Total != "13.50" {
		t.Errorf("total = %q, want 13.50", report.Stats.Total)
	}

	codes := map[string]string{}
	for _, f := range report.Failures {
		codes[filepath.Base(f.File)] = f.Code
	}
	if codes["dup.xml"] != "NFE004" || codes["oops.xml"] != "NFE001" || len(codes) != 2 {
		t.Errorf("failures = %+v", report.Failures)
	}
}

func TestIngest_ArgumentOrderDecidesDuplicates(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"first.xml":  invoiceXML("7", "1"),
		"second.xml": invoiceXML("7", "2"),
	})

	for i := 0; i < 5; i++ {
		out, err := run(t, "ingest", "-o", "json", "-j", "4",
			filepath.Join(dir, "second.xml"), filepath.Join(dir, "first.xml"))
		if err != nil {
			t.Fatalf("ingest error = %v", err)
		}

		var report Report
		if err := json.Unmarshal([]byte(out), &report); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(report.Entries) != 1 || report.Entries[0].Value != "2.00" {
			t.Fatalf("run %d: entries = %+v, want the second.xml record", i, report.Entries)
		}
	}
}

func TestIngest_YAML(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.xml": invoiceXML("1", "10")})

	out, err := run(t, "ingest", "--output", "yaml", filepath.Join(dir, "a.xml"))
	if err != nil {
		t.Fatalf("ingest error = %v", err)
	}

	var report struct {
		Entries []core.Record `yaml:"entries"`
	}
	if err := yaml.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(report.Entries) != 1 || report.Entries[0].InvoiceNumber != "1" || report.Entries[0].Value != "10.00" {
		t.Errorf("entries = %+v", report.Entries)
	}
	if !strings.Contains(out, "invoice_number:") {
		t.Errorf("yaml keys not snake case:\n%s", out)
	}
}

func TestIngest_Table(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.xml": invoiceXML("1", "10"),
		"b.xml": invoiceXML("2", "abc"),
	})

	out, err := run(t, "ingest", dir)
	if err != nil {
		t.Fatalf("ingest error = %v", err)
	}

	for _, want := range []string{
		"FORNECEDOR", "R$ 10.00", "1 NF-e, total R$ 10.00",
		"1 arquivo(s) rejeitado(s)",
		"b.xml: O valor da NF-e (vNF) não é um número válido. (Código: NFE003). Confira o campo vNF no arquivo",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestIngest_Strict(t *testing.T) {
	dir := writeFiles(t, map[string]string{"bad.xml": ""})

	_, err := run(t, "ingest", "--strict", dir)
	if !errors.Is(err, errIngestFailures) {
		t.Fatalf("error = %v, want errIngestFailures", err)
	}

	if _, err := run(t, "ingest", dir); err != nil {
		t.Errorf("without --strict error = %v, want nil", err)
	}
}

func TestIngest_MissingPath(t *testing.T) {
	out, err := run(t, "ingest", "-o", "json", filepath.Join(t.TempDir(), "nope.xml"))
	if err != nil {
		t.Fatalf("ingest error = %v", err)
	}

	var report Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(report.Failures) != 1 || report.Failures[0].Code != "FILE004" {
		t.Errorf("failures = %+v", report.Failures)
	}
}

func TestIngest_TooLarge(t *testing.T) {
	t.Setenv("UPLOAD_MAX_FILE_SIZE", "50")
	dir := writeFiles(t, map[string]string{"big.xml": invoiceXML("1", "1")})

	out, err := run(t, "ingest", "-o", "json", dir)
	if err != nil {
		t.Fatalf("ingest error = %v", err)
	}
	if !strings.Contains(out, `"code": "FILE001"`) {
		t.Errorf("output = %s, want FILE001", out)
	}
}

func TestIngest_BadArgs(t *testing.T) {
	if _, err := run(t, "ingest"); err == nil {
		t.Error("ingest without paths should fail")
	}
	if _, err := run(t, "ingest", "-o", "xml", "."); err == nil {
		t.Error("unknown output format should fail")
	}
}

// ============================================================================
// version
// ============================================================================

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "nfectl "+Version) || !strings.Contains(out, "Go Version:") {
		t.Errorf("output = %q", out)
	}
}
