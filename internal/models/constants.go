package models

const (
	NoDocumentsMessage     = "No documents uploaded."
	NotAvailableMessage    = "Information not available in uploaded documents."
	DataQueryErrorTemplate = "Data query error: %v"
	AnswerErrorTemplate    = "Error generating answer: %v"
	SummaryErrorTemplate   = "Error generating summary: %v"

	// legacy failure marker produced by the text extractors
	ErrorMarker = "Error"

	ContextSeparator = "\n"
	ThinkTag         = `(?s)<think>.*?</think>`
	HyperlinkRegex   = `https?://[^\s<>"]+|www\.[^\s<>"]+`
)

var (
	AnswerSystemPrompt = `You are a helpful assistant. Answer the question using only the provided context. If the context does not contain the answer, say that the information is not available in the uploaded documents.`

	AnswerPromptTemplate = `<context>
%s
</context>
Question: %s
`

	SummaryPromptTemplate = `<document>
%s
</document>
Please give a concise summary of the documents above. Answer only with the summary and nothing else.
`
)
