package crew

import "AI-Agency/internal/llm"

// BuiltinDefinitions 返回内置的四个 crew 工作流。
// 外部定义文件可以通过 LoadDefinitions 追加或覆盖。
func BuiltinDefinitions() []Definition {
	return []Definition{
		{
			Name:        "marketing",
			Description: "Marketing crew for content and campaign generation.",
			Inputs: []InputSpec{
				{Name: "topic", Required: true},
				{Name: "target_audience", Default: "general audience"},
			},
			Agents: []AgentSpec{
				{
					Name:      "marketer",
					Role:      "Marketing Specialist",
					Goal:      "Create compelling marketing content about {topic}",
					Backstory: "You are an experienced marketing specialist with expertise in creating engaging content that resonates with target audiences.",
				},
			},
			Tasks: []TaskSpec{
				{
					Name:           "write_message",
					Agent:          "marketer",
					Description:    "Create a short marketing message about '{topic}' for {target_audience}. Keep it concise and engaging.",
					ExpectedOutput: "A compelling marketing message (2-3 sentences)",
				},
			},
		},
		{
			Name:        "support",
			Description: "Customer support crew for drafting issue responses.",
			Inputs: []InputSpec{
				{Name: "issue", Required: true},
				{Name: "customer_context", Default: "general customer"},
			},
			Agents: []AgentSpec{
				{
					Name:      "support_specialist",
					Role:      "Customer Support Specialist",
					Goal:      "Resolve customer issues with clear and empathetic responses",
					Backstory: "You are a seasoned support specialist who excels at turning frustrated customers into satisfied ones through helpful, precise answers.",
				},
			},
			Tasks: []TaskSpec{
				{
					Name:           "draft_response",
					Agent:          "support_specialist",
					Description:    "Draft a helpful support response for the following issue: '{issue}'. The customer is a {customer_context}. Be empathetic and actionable.",
					ExpectedOutput: "A clear, empathetic support response with concrete next steps",
				},
			},
		},
		{
			Name:        "analysis",
			Description: "Data analysis crew for extracting insights.",
			Inputs: []InputSpec{
				{Name: "data_description", Required: true},
				{Name: "analysis_goal", Default: "identify key insights"},
			},
			Agents: []AgentSpec{
				{
					Name:      "analyst",
					Role:      "Data Analyst",
					Goal:      "Analyze data and surface actionable insights",
					Backstory: "You are a meticulous data analyst who excels at interpreting datasets and communicating findings to non-technical stakeholders.",
				},
			},
			Tasks: []TaskSpec{
				{
					Name:           "analyze",
					Agent:          "analyst",
					Description:    "Analyze the following data: {data_description}. The goal is to {analysis_goal}. Summarise the most important findings.",
					ExpectedOutput: "A concise analysis summary with key insights and recommendations",
				},
			},
		},
		{
			Name:        "social_media",
			Description: "Social media crew: trend research, content strategy, analytics and scheduling.",
			Inputs: []InputSpec{
				{Name: "industry", Required: true},
				{Name: "company_name", Required: true},
			},
			Agents: []AgentSpec{
				{
					Name:      "researcher",
					Role:      "Social Media Trend Research Specialist",
					Goal:      "Research and identify trending topics, hashtags, and content opportunities in {industry}",
					Backstory: "You are an expert social media researcher with deep knowledge of digital marketing trends and viral content patterns across platforms.",
					Provider:  llm.ProviderPerplexity,
				},
				{
					Name:      "content_strategist",
					Role:      "Content Strategy and Creation Specialist",
					Goal:      "Generate compelling, platform-specific social media content ideas for {company_name}",
					Backstory: "You are a creative social media strategist with expertise in adapting trending topics into brand-appropriate content that drives engagement.",
				},
				{
					Name:      "analytics_specialist",
					Role:      "Engagement Analytics and Optimization Specialist",
					Goal:      "Analyze social media performance and provide data-driven recommendations for {company_name}",
					Backstory: "You are a social media analytics expert who finds patterns in posting times, content performance, and audience behavior.",
				},
				{
					Name:      "scheduler",
					Role:      "Social Media Schedule Coordinator",
					Goal:      "Create comprehensive posting schedules optimizing timing and frequency for {company_name}",
					Backstory: "You are an experienced social media manager specializing in content scheduling and campaign coordination across time zones.",
				},
			},
			Tasks: []TaskSpec{
				{
					Name:           "research_trends",
					Agent:          "researcher",
					Description:    "Research current trending topics, hashtags, and conversation themes relevant to the {industry} industry. Focus on opportunities that {company_name} can leverage for engaging content.",
					ExpectedOutput: "A trend report: top trending topics, relevant hashtags, emerging themes and content opportunities for {company_name}",
				},
				{
					Name:           "analyze_performance",
					Agent:          "analytics_specialist",
					Description:    "Analyze social media performance patterns and industry best practices to identify optimal posting times, content types, and engagement strategies for {company_name}.",
					ExpectedOutput: "A performance optimization report: optimal posting times, best content formats, engagement patterns and key metrics to track",
				},
				{
					Name:           "create_content",
					Agent:          "content_strategist",
					Description:    "Based on the trending topics research, create a content strategy with specific post ideas, captions, and formats optimized for different platforms, aligned with {company_name}'s brand voice.",
					ExpectedOutput: "A detailed content strategy: post ideas with platform adaptations, sample captions, content themes and hashtag recommendations",
					Context:        []string{"research_trends"},
				},
				{
					Name:           "build_schedule",
					Agent:          "scheduler",
					Description:    "Combine the content strategy and timing recommendations into a 30-day social media publishing schedule for {company_name}, with posting times and platform assignments.",
					ExpectedOutput: "A complete 30-day social media calendar with posting times, content assignments and cross-platform notes",
					Context:        []string{"create_content", "analyze_performance"},
				},
			},
		},
	}
}
