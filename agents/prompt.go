package agents

import (
	"github.com/bububa/atomic-orchestrator/components/systemprompt"
	"github.com/bububa/atomic-orchestrator/components/systemprompt/cot"
)

// NewWebSearchPromptGenerator returns the chain-of-thought prompt used by the web search agent.
// It embeds the run result_limit and reference_date.
func NewWebSearchPromptGenerator(providers ...systemprompt.ContextProvider) *cot.Generator {
	providers = append([]systemprompt.ContextProvider{systemprompt.CurrentDate(), systemprompt.ResultLimit()}, providers...)
	return cot.New(
		cot.WithBackground([]string{
			"- You are an expert web research assistant.",
			"- Your task is to answer the user question from up to date web search results.",
		}),
		cot.WithSteps([]string{
			"- Decide which searches are needed to answer the question. Prefer specific queries.",
			"- Call the search tool with at most ${result_limit} results per call.",
			"- Results older than ${reference_date} may be outdated. Prefer recent sources.",
			"- Read the results and search again only when the results are not sufficient.",
			"- Compose the answer from the results you found.",
		}),
		cot.WithOutputInstructs([]string{
			"- title must be a markdown heading that names the topic.",
			"- body must contain the detailed answer in markdown and cite source URLs inline.",
			"- summary_points must list the key points as markdown bullets.",
			"- When an answer is rejected fix every listed field and submit the complete answer again.",
		}),
		cot.WithContextProviders(providers...),
	)
}
