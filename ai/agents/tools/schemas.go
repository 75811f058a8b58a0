package tools

import "github.com/getkin/kin-openapi/openapi3"

// Tool names shared by the forced task calls and the agent registry.
const (
	ToolExtractKeyPoints  = "extract_key_points"
	ToolGenerateSummary   = "generate_summary"
	ToolCreateSocialPosts = "create_social_media_posts"
	ToolCreateNewsletter  = "create_email_newsletter"
	ToolFinish            = "finish"
)

func described(s *openapi3.Schema, description string) *openapi3.Schema {
	s.Description = description
	return s
}

func keyPointsSchema() *openapi3.Schema {
	return described(openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema()),
		"Key points extracted from the blog post")
}

// Output schemas: the shape the model must return when a task forces the
// matching tool call.

func keyPointsOutputSchema() *openapi3.Schema {
	return described(openapi3.NewObjectSchema().
		WithProperty("title", openapi3.NewStringSchema()).
		WithProperty("content", openapi3.NewStringSchema()).
		WithProperty("key_points", keyPointsSchema()).
		WithRequired([]string{"key_points"}),
		"Record the key points of a blog post")
}

func summaryOutputSchema() *openapi3.Schema {
	return described(openapi3.NewObjectSchema().
		WithProperty("summary", openapi3.NewStringSchema()).
		WithRequired([]string{"summary"}),
		"Record a concise summary")
}

func socialPostsOutputSchema() *openapi3.Schema {
	return described(openapi3.NewObjectSchema().
		WithProperty("twitter", described(openapi3.NewStringSchema(), "Post for Twitter, at most 280 characters")).
		WithProperty("linkedin", described(openapi3.NewStringSchema(), "Post for LinkedIn")).
		WithProperty("facebook", described(openapi3.NewStringSchema(), "Post for Facebook")).
		WithRequired([]string{"twitter", "linkedin", "facebook"}),
		"Record platform-specific social media posts")
}

func newsletterOutputSchema() *openapi3.Schema {
	return described(openapi3.NewObjectSchema().
		WithProperty("subject", openapi3.NewStringSchema()).
		WithProperty("body", openapi3.NewStringSchema()).
		WithRequired([]string{"subject", "body"}),
		"Record a newsletter email")
}

// Agent input schemas: what the agent may pass when it calls a tool.
// Missing inputs are regenerated from the post.

func extractKeyPointsInputSchema() *openapi3.Schema {
	return described(openapi3.NewObjectSchema(),
		"Extract the key points of the blog post. Returns {\"key_points\": [...]}.")
}

func generateSummaryInputSchema() *openapi3.Schema {
	return described(openapi3.NewObjectSchema().
		WithProperty("key_points", keyPointsSchema()),
		"Generate a concise summary from key points. Returns {\"summary\": \"...\"}.")
}

func createSocialPostsInputSchema() *openapi3.Schema {
	return described(openapi3.NewObjectSchema().
		WithProperty("key_points", keyPointsSchema()),
		"Create Twitter, LinkedIn and Facebook posts from key points.")
}

func createNewsletterInputSchema() *openapi3.Schema {
	return described(openapi3.NewObjectSchema().
		WithProperty("key_points", keyPointsSchema()).
		WithProperty("summary", openapi3.NewStringSchema()),
		"Write a newsletter email from the summary and key points. Returns {\"subject\", \"body\"}.")
}

func finishInputSchema() *openapi3.Schema {
	return described(openapi3.NewObjectSchema().
		WithProperty("summary", openapi3.NewStringSchema()).
		WithProperty("social_posts", openapi3.NewObjectSchema()).
		WithProperty("email", openapi3.NewObjectSchema()).
		WithRequired([]string{"summary", "social_posts", "email"}),
		"Finish the task with all final results.")
}
