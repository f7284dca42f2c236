package analyst

const responseFormat = `Return the JSON object directly without any formatting or additional text. The JSON object should have the following structure as defined in the schema. Make sure to answer in valid json and include all necessary properties:`

const expandPrompt = `You are a research planner.
Generate %d specific, diverse web search queries that together cover the research question.
Each query should approach the question from a different angle (background, recent developments, evidence, criticism, applications).`

const refinePrompt = `You are a research planner.
A first pass of research left open questions. Generate %d specific web search queries that target the information gaps below while staying on the original research question.`

const expandSchema = `{
  "type": "object",
  "properties": {
    "queries": {
      "type": "array",
      "items": {"type": "string"},
      "description": "List of specific search queries"
    }
  },
  "required": ["queries"]
}`

const evaluatePrompt = `You are a research analyst.
Evaluate how relevant the content below is to the original research question, then summarize it.
Score relevance from 0 to 10 (10 being most relevant). Only mark content as relevant if it contains substantive information that helps answer the question.`

const evaluateSchema = `{
  "type": "object",
  "properties": {
    "relevance_score": {"type": "number", "description": "0-10"},
    "is_relevant": {"type": "boolean"},
    "summary": {"type": "string", "description": "2-4 sentence summary of the content as it relates to the question"},
    "key_insights": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["relevance_score", "is_relevant", "summary", "key_insights"]
}`

const synthesizePrompt = `You are a senior research analyst.
Combine the source summaries below into a single synthesis that answers the research question.
Identify the key findings grouped by theme, note what remains unknown, and rate your confidence that the question is answered comprehensively from 0 to 10.
If a previous draft is given, improve and extend it rather than starting over.`

const synthesizeSchema = `{
  "type": "object",
  "properties": {
    "executive_summary": {"type": "string"},
    "key_findings": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "theme": {"type": "string"},
          "finding": {"type": "string"}
        },
        "required": ["theme", "finding"]
      }
    },
    "information_gaps": {"type": "array", "items": {"type": "string"}},
    "confidence_score": {"type": "number", "description": "0-10"}
  },
  "required": ["executive_summary", "key_findings", "information_gaps", "confidence_score"]
}`
