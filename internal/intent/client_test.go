package intent_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"calobot.app/bot/internal/intent"
)

var _ = Describe("Client", func() {
	var (
		server  *httptest.Server
		client  *intent.Client
		handler http.HandlerFunc
	)

	BeforeEach(func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))
		client = intent.NewClient(server.URL, server.Client())
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Detect", func() {
		It("classifies a message with the user as session key", func() {
			var body map[string]string
			handler = func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.URL.Path).To(Equal("/query"))
				Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
				w.Write([]byte(`{
					"name": "human-reply",
					"parameters": {"question": "営業時間は？"},
					"fulfillment": {"messages": [{"type": 0, "speech": "確認します"}]}
				}`))
			}

			got, err := client.Detect(context.Background(), "U1", "営業時間は？")

			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(HaveKeyWithValue("session_id", "U1"))
			Expect(body).To(HaveKeyWithValue("text", "営業時間は？"))
			Expect(got.Name).To(Equal("human-reply"))
			Expect(got.Parameters).To(HaveKeyWithValue("question", "営業時間は？"))
			Expect(got.Fulfillment.Messages).To(HaveLen(1))
		})

		It("fails on non-200 responses", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			}

			_, err := client.Detect(context.Background(), "U1", "こんにちは")

			Expect(err).To(MatchError(ContainSubstring("503")))
		})
	})

	Describe("List", func() {
		It("returns the intent catalog", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodGet))
				Expect(r.URL.Path).To(Equal("/intents"))
				w.Write([]byte(`[
					{"id": "i-1", "name": "営業時間"},
					{"id": "i-2", "name": "アクセス"}
				]`))
			}

			intents, err := client.List(context.Background())

			Expect(err).NotTo(HaveOccurred())
			Expect(intents).To(HaveLen(2))
			Expect(intents[0].ID).To(Equal("i-1"))
			Expect(intents[1].Name).To(Equal("アクセス"))
		})
	})

	Describe("Add", func() {
		It("registers a new intent with phrase and response", func() {
			var body map[string]string
			handler = func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/intents"))
				Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
				w.Write([]byte(`{}`))
			}

			err := client.Add(context.Background(), "営業時間は？", "robot-reply", "営業時間は？", "10時から19時です")

			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(HaveKeyWithValue("name", "営業時間は？"))
			Expect(body).To(HaveKeyWithValue("action", "robot-reply"))
			Expect(body).To(HaveKeyWithValue("training_phrase", "営業時間は？"))
			Expect(body).To(HaveKeyWithValue("response_text", "10時から19時です"))
		})
	})

	Describe("AddTrainingPhrase", func() {
		It("attaches the phrase to the chosen intent", func() {
			var body map[string]string
			handler = func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/intents/i-2/phrases"))
				Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
				w.Write([]byte(`{}`))
			}

			err := client.AddTrainingPhrase(context.Background(), "i-2", "駅からの行き方を教えて")

			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(HaveKeyWithValue("phrase", "駅からの行き方を教えて"))
		})
	})
})
