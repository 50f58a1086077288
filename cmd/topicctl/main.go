// topicctl is a small operational CLI against a running topic-orchestrator:
//
//	topicctl list -user u1               list pending suggestions
//	topicctl accept -user u1 -topic ID   accept a suggestion and watch its task
//	topicctl reject -user u1 -topic ID   reject a suggestion
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"

	"topic-orchestrator/internal/domain"
	"topic-orchestrator/internal/infra/logger"
	"topic-orchestrator/internal/poller"
	"topic-orchestrator/internal/usecase"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("ORCHESTRATOR_URL")
	if baseURL == "" {
		baseURL = "http://localhost:9020"
	}

	fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	user := fs.String("user", "", "user id")
	topic := fs.String("topic", "", "topic id")
	fs.Parse(os.Args[2:])

	if *user == "" {
		fmt.Println("-user is required")
		os.Exit(1)
	}

	client := &http.Client{Timeout: 10 * time.Second}

	var err error
	switch os.Args[1] {
	case "list":
		err = listSuggestions(client, baseURL, *user)
	case "accept":
		err = acceptTopic(client, baseURL, *user, *topic)
	case "reject":
		err = rejectTopic(client, baseURL, *user, *topic)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage: topicctl {list|accept|reject} -user USER [-topic TOPIC_ID]")
}

func listSuggestions(client *http.Client, baseURL, user string) error {
	resp, err := client.Get(fmt.Sprintf("%s/topics/suggestions?user_id=%s", baseURL, url.QueryEscape(user)))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var topics []struct {
		ID            string  `json:"id"`
		Topic         string  `json:"topic"`
		PriorityScore float64 `json:"priority_score"`
		Status        string  `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&topics); err != nil {
		return err
	}

	if len(topics) == 0 {
		fmt.Println("No pending suggestions.")
		return nil
	}
	for _, t := range topics {
		fmt.Printf("%s  [%.2f]  %s\n", t.ID, t.PriorityScore, t.Topic)
	}
	return nil
}

func acceptTopic(client *http.Client, baseURL, user, topic string) error {
	if topic == "" {
		return fmt.Errorf("-topic is required")
	}

	resp, err := client.Post(
		fmt.Sprintf("%s/topics/suggestions/%s/accept?user_id=%s", baseURL, topic, url.QueryEscape(user)),
		"application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("accept returned %d", resp.StatusCode)
	}

	var out struct {
		Status string `json:"status"`
		TaskID string `json:"task_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	taskID, err := uuid.Parse(out.TaskID)
	if err != nil {
		return fmt.Errorf("server returned invalid task id %q", out.TaskID)
	}
	fmt.Printf("Accepted. task_id=%s status=%s\n", out.TaskID, out.Status)

	return watchTask(client, baseURL, taskID)
}

func rejectTopic(client *http.Client, baseURL, user, topic string) error {
	if topic == "" {
		return fmt.Errorf("-topic is required")
	}

	resp, err := client.Post(
		fmt.Sprintf("%s/topics/suggestions/%s/reject?user_id=%s", baseURL, topic, url.QueryEscape(user)),
		"application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reject returned %d", resp.StatusCode)
	}
	fmt.Println("Rejected.")
	return nil
}

func watchTask(client *http.Client, baseURL string, taskID uuid.UUID) error {
	fetch := func(ctx context.Context, id uuid.UUID) (*usecase.StatusOutput, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf("%s/research/status/%s", baseURL, id), nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("status returned %d", resp.StatusCode)
		}

		var body struct {
			TaskID          string `json:"task_id"`
			Topic           string `json:"topic"`
			Status          string `json:"status"`
			TopicStatus     string `json:"topic_status"`
			ProgressMessage string `json:"progress_message"`
			FailureReason   string `json:"failure_reason"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, err
		}
		return &usecase.StatusOutput{
			TaskID:          id,
			Topic:           body.Topic,
			TopicStatus:     domain.TopicStatus(body.TopicStatus),
			TaskStatus:      domain.TaskStatus(body.Status),
			ProgressMessage: body.ProgressMessage,
			FailureReason:   body.FailureReason,
		}, nil
	}

	p := poller.New(fetch, 2*time.Second, logger.New())
	p.Start(context.Background(), taskID)

	for status := range p.Updates() {
		fmt.Printf("  %s: %s\n", status.TaskStatus, status.ProgressMessage)
	}
	fmt.Println("Done.")
	return nil
}
