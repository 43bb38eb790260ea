package core

// error_messages.go turns ingest errors into messages for the person who
// dropped the file. Messages are Portuguese, like the rest of the panel.
//
// # Error Codes Reference
//
// # Document Errors (NFE001-NFE099)
//
//	NFE001 - Malformed document: the file is not well-formed XML
//	         Match: ErrMalformedDocument
//
//	NFE002 - Invalid structure: well-formed XML without a document element
//	         Match: ErrInvalidDocumentStructure
//
//	NFE003 - Invalid value: vNF is present but not a number
//	         Match: ErrValueFormat
//
//	NFE004 - Duplicate: the invoice number is already on the panel
//	         Match: ErrDuplicateInvoice
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large        Match: ErrFileTooLarge, "file too large"
//	FILE004 - No file selected      Match: ErrNoFile
//	FILE005 - Empty file            Match: ErrEmptyFile
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL002 - System busy            Match: ErrTooManyUploads
//	UPL004 - Request cancelled      Match: context.Canceled
//	UPL005 - Request timed out      Match: context.DeadlineExceeded
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests     Match: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. The message carries the technical error so
// the person can report it; support should check the logs for the request id.
//
// Sentinel targets are checked with errors.Is first, in table order. String
// patterns are then matched case-insensitively with strings.Contains.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-facing error information with guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Support reference
}

// errorRule maps either a sentinel error or a text pattern to a message.
type errorRule struct {
	target  error
	pattern string
	msg     UserMessage
}

var errorRules = []errorRule{
	// =========================================================================
	// Document and ledger outcomes (NFE001-NFE004)
	// =========================================================================
	{
		target: ErrMalformedDocument,
		msg: UserMessage{
			Message: "Erro ao analisar o arquivo XML. Verifique a formatação.",
			Action:  "Confira se o arquivo é o XML da NF-e e não foi alterado",
			Code:    "NFE001",
		},
	},
	{
		target: ErrInvalidDocumentStructure,
		msg: UserMessage{
			Message: "Arquivo XML inválido. Verifique se ele contém os campos necessários (xNome, nNF, vNF).",
			Action:  "Envie o XML completo da NF-e",
			Code:    "NFE002",
		},
	},
	{
		target: ErrValueFormat,
		msg: UserMessage{
			Message: "O valor da NF-e (vNF) não é um número válido.",
			Action:  "Confira o campo vNF no arquivo",
			Code:    "NFE003",
		},
	},
	{
		target: ErrDuplicateInvoice,
		msg: UserMessage{
			Message: "Este arquivo já foi processado.",
			Action:  "A NF-e já aparece no painel",
			Code:    "NFE004",
		},
	},

	// =========================================================================
	// File errors (FILE001-FILE005)
	// =========================================================================
	{
		target: ErrFileTooLarge,
		msg: UserMessage{
			Message: "O arquivo excede o tamanho máximo permitido.",
			Action:  "Envie apenas o XML da NF-e",
			Code:    "FILE001",
		},
	},
	{
		target: ErrEmptyFile,
		msg: UserMessage{
			Message: "O arquivo enviado está vazio.",
			Action:  "Selecione o XML da NF-e",
			Code:    "FILE005",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "O arquivo excede o tamanho máximo permitido.",
			Action:  "Envie apenas o XML da NF-e",
			Code:    "FILE001",
		},
	},
	{
		target: ErrNoFile,
		msg: UserMessage{
			Message: "Arquivo XML não encontrado.",
			Action:  "Arraste o arquivo ou clique para selecionar",
			Code:    "FILE004",
		},
	},

	// =========================================================================
	// Upload errors (UPL002-UPL005)
	// =========================================================================
	{
		target: ErrTooManyUploads,
		msg: UserMessage{
			Message: "O sistema está processando outros arquivos.",
			Action:  "Aguarde um momento e tente novamente",
			Code:    "UPL002",
		},
	},
	{
		target: context.Canceled,
		msg: UserMessage{
			Message: "O envio foi cancelado.",
			Action:  "Tente novamente",
			Code:    "UPL004",
		},
	},
	{
		target: context.DeadlineExceeded,
		msg: UserMessage{
			Message: "O envio excedeu o tempo limite.",
			Action:  "Verifique sua conexão e tente novamente",
			Code:    "UPL005",
		},
	},

	// =========================================================================
	// Rate limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Muitas requisições.",
			Action:  "Aguarde um momento antes de tentar novamente",
			Code:    "RATE001",
		},
	},
}

// defaultCode marks the ERR000 fallback.
const defaultCode = "ERR000"

// MapError converts an error to a user-facing message.
// Returns the zero UserMessage for a nil error.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, rule := range errorRules {
		if rule.target != nil && errors.Is(err, rule.target) {
			return rule.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, rule := range errorRules {
		if rule.pattern != "" && strings.Contains(errStr, rule.pattern) {
			return rule.msg
		}
	}

	return UserMessage{
		Message: fmt.Sprintf("Ocorreu um erro: %v", err),
		Action:  "Tente novamente ou contate o suporte",
		Code:    defaultCode,
	}
}

// FormatUserError renders a message for display:
// "Message (Código: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Código: %s). %s", msg.Message, msg.Code, msg.Action)
}
