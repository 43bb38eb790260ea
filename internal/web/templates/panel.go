// Package templates holds the templ components of the NF-e panel.
package templates

import (
	"context"
	"fmt"
	"io"

	"github.com/JonMunkholm/nfe-panel/internal/core"
	"github.com/a-h/templ"
)

// PanelParams is everything the panel page shows.
type PanelParams struct {
	Entries []core.Record // newest first
	Stats   core.LedgerStats
	Error   *core.UserMessage // nil when the last action succeeded
}

// Panel renders the full page: drop zone, optional error line and entries.
func Panel(p PanelParams) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, pageHead); err != nil {
			return err
		}
		if _, err := io.WriteString(w, uploadForm); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `<hr><div id="entries">`); err != nil {
			return err
		}
		if p.Error != nil {
			if err := ErrorAlert(p.Error.Message, p.Error.Action, p.Error.Code).Render(ctx, w); err != nil {
				return err
			}
		}
		if err := Summary(p.Stats).Render(ctx, w); err != nil {
			return err
		}
		for _, rec := range p.Entries {
			if err := Entry(rec).Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</div></div>`+dropScript+`</body></html>`)
		return err
	})
}

// Entry renders one accepted invoice.
func Entry(rec core.Record) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<div class="entry"><h2>Fornecedor: %s</h2>`+
				`<p><strong>NF-e:</strong> %s</p>`+
				`<p><strong>Valor:</strong> R$ %s</p>`+
				`<p><strong>Data de saída:</strong> %s</p>`+
				`<p><small>Recebido às %s</small></p></div>`,
			templ.EscapeString(rec.Supplier),
			templ.EscapeString(rec.InvoiceNumber),
			templ.EscapeString(rec.Value),
			templ.EscapeString(rec.IssueDate),
			templ.EscapeString(rec.ReceivedAt),
		)
		return err
	})
}

// Summary renders the entry count and value total.
func Summary(stats core.LedgerStats) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if stats.Count == 0 {
			return nil
		}
		_, err := fmt.Fprintf(w,
			`<p class="summary">%d NF-e recebida(s), total R$ %s`+
				` · <a href="/api/export.xlsx">Exportar XLSX</a>`+
				` · <a href="/api/export.csv">Exportar CSV</a></p>`,
			stats.Count,
			templ.EscapeString(stats.Total),
		)
		return err
	})
}

// ErrorAlert renders the error line shown above the entries.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<p class="error" role="alert">%s <small>%s (Código: %s)</small></p>`,
			templ.EscapeString(message),
			templ.EscapeString(action),
			templ.EscapeString(code),
		)
		return err
	})
}

const pageHead = `<!DOCTYPE html>
<html lang="pt-br">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Painel de Entradas - NF-e</title>
<style>
body { font-family: 'Roboto', sans-serif; background-color: #111; color: #eee; margin: 0; padding: 20px; }
.container { max-width: 960px; margin: 0 auto; }
.title { text-align: center; margin-bottom: 20px; color: #66cdaa; }
.upload-container { border: 2px dashed #66cdaa; border-radius: 10px; padding: 20px; cursor: pointer; text-align: center; width: 80%; margin: 0 auto; height: 200px; display: flex; align-items: center; justify-content: center; }
.upload-container.dragover { background-color: #333; }
.entry { border: 1px solid #66cdaa; border-radius: 10px; padding: 10px; width: 80%; margin: 10px auto; }
.entry h2 { margin-top: 0; color: #66cdaa; }
.error { color: red; width: 80%; margin: 10px auto; }
.summary { width: 80%; margin: 10px auto; color: #aaa; }
.summary a { color: #66cdaa; }
@media (max-width: 768px) { .upload-container { width: 100%; height: 150px; } .entry { width: 100%; } }
</style>
</head>
<body>
<div class="container">
<h1 class="title">Painel de Entradas - NF-e</h1>
`

const uploadForm = `<div class="upload-container" id="drop-zone">
<form id="upload-form" action="/" method="post" enctype="multipart/form-data">
<div>Arraste e solte o arquivo XML aqui ou clique para selecionar</div>
<input type="file" name="file" accept=".xml" id="file-input" style="display: none;">
<button type="submit" id="submit-button" style="display: none;">Importar XML</button>
</form>
</div>
`

const dropScript = `<script>
const dropZone = document.getElementById("drop-zone");
const fileInput = document.getElementById("file-input");
const uploadForm = document.getElementById("upload-form");
dropZone.addEventListener("click", () => fileInput.click());
fileInput.addEventListener("change", () => { if (fileInput.files.length) uploadForm.submit(); });
dropZone.addEventListener("dragover", (event) => { event.preventDefault(); dropZone.classList.add("dragover"); });
dropZone.addEventListener("dragleave", () => dropZone.classList.remove("dragover"));
dropZone.addEventListener("drop", (event) => {
  event.preventDefault();
  dropZone.classList.remove("dragover");
  const files = event.dataTransfer.files;
  if (!files.length) return;
  if (files[0].type === "application/xml" || files[0].type === "text/xml" || files[0].name.endsWith(".xml")) {
    fileInput.files = files;
    uploadForm.submit();
  } else {
    alert("Por favor, selecione um arquivo XML.");
  }
});
</script>`
