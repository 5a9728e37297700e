package rag

// Prompt templates for the language model collaborator. All prompts demand
// raw JSON so structured output recovery has the easiest possible job.

const analyzePrompt = `Analyze the following search query and respond with JSON only.

Query: %s

Respond with exactly this JSON structure:
{
  "intent": "informational|fact_check|exploratory|comparative|procedural",
  "complexity": "simple|medium|complex",
  "scope": "narrow|medium|broad",
  "domain": "general|technical|academic|news",
  "strategy": "precision|comprehensive|exploratory",
  "key_concepts": ["concept1", "concept2"]
}

No markdown, no explanation, JSON only.`

const keywordsPrompt = `Generate hierarchical search keywords for the query below.

Query: %s
Intent: %s
Key concepts: %s

Respond with exactly this JSON structure:
{
  "primary_keywords": ["2-4 core terms, combined with AND"],
  "secondary_keywords": ["5-8 related terms, combined with OR"],
  "context_keywords": ["3-5 disambiguating terms"],
  "negative_keywords": ["1-3 terms for content to avoid"],
  "confidence": 0.0
}

No markdown, no explanation, JSON only.`

const perspectivesPrompt = `Generate diverse search queries that approach the question below from different angles: decomposition into sub-questions, alternative phrasings, a more specific variant, a more general variant, a temporal variant, and a causal variant.

Question: %s
Keywords: %s

Respond with a JSON array of query strings only. No markdown, no explanation.`

const refinePrompt = `You are ranking search results for relevance.

Question: %s

Candidate documents:
%s

List the numbers of the documents that are directly relevant to the question, most relevant first, as a comma-separated list (for example: 3,1,7). Respond with the list only.`

const reportPrompt = `Write a well-organized markdown report that answers the question below using only the provided sources. Cite sources inline as [n] matching the source numbers. If the sources do not answer the question, say so.

Question: %s

Sources:
%s

Report:`
