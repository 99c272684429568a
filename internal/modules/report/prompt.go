package report

import (
	"fmt"
	"strings"

	"github.com/appsight/core/internal/modules/appstore"
)

const analysisSystemPrompt = `You are a product analyst for mobile apps. ` +
	`Write a structured markdown report analyzing the given app store listing and its user reviews. ` +
	`Cover: overall sentiment, recurring praise, recurring complaints, feature requests, and actionable recommendations. ` +
	`Base every claim on the provided data.`

const comparisonSystemPrompt = `You are a product analyst for mobile apps. ` +
	`Write a structured markdown report comparing the given competing app store listings. ` +
	`Cover: positioning, rating and review-volume differences, strengths and weaknesses of each app, and where each one wins. ` +
	`Base every claim on the provided data.`

const maxReviewsInPrompt = 80

func buildAnalysisPrompt(details *appstore.Details, reviews []appstore.Review) string {
	var b strings.Builder
	fmt.Fprintf(&b, "App: %s\nDeveloper: %s\nScore: %.2f\nTotal reviews: %d\n\n",
		details.Title, details.Developer, details.Score, details.Reviews)
	fmt.Fprintf(&b, "Description:\n%s\n\n", details.Description)

	if len(details.Histogram) > 0 {
		b.WriteString("Rating distribution:\n")
		for _, star := range []string{"5", "4", "3", "2", "1"} {
			fmt.Fprintf(&b, "  %s stars: %d\n", star, details.Histogram[star])
		}
		b.WriteString("\n")
	}

	b.WriteString("User reviews:\n")
	for i, review := range reviews {
		if i >= maxReviewsInPrompt {
			break
		}
		fmt.Fprintf(&b, "- [%.0f/5] %s\n", review.Score, strings.ReplaceAll(review.Text, "\n", " "))
	}
	return b.String()
}

func buildComparisonPrompt(competitors []*appstore.Details) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Compare these %d competing apps:\n\n", len(competitors))
	for i, details := range competitors {
		fmt.Fprintf(&b, "## App %d: %s\nDeveloper: %s\nScore: %.2f\nTotal reviews: %d\nDescription:\n%s\n\n",
			i+1, details.Title, details.Developer, details.Score, details.Reviews, details.Description)
	}
	return b.String()
}

func comparisonTitle(competitors []*appstore.Details) string {
	names := make([]string, 0, len(competitors))
	for _, details := range competitors {
		names = append(names, details.Title)
	}
	return strings.Join(names, " vs ")
}
