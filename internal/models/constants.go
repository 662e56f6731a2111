package models

const (
	ContextSeparator = "\n---\n"

	// QAPromptTemplate is rendered with .context (retrieved passages) and
	// .question (the user's message).
	QAPromptTemplate = `You are very smart at everything, you always give the best, the most accurate and most precise answers.
Use only the following pieces of context to answer. If the context does not contain the answer, say that you don't know.

Context:
{{.context}}

Answer the following Question: {{.question}}.
Start the answer directly. No small talk please`

	UserErrorPrefix = "An error occurred while processing your request: "
)
