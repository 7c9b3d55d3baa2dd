package store

import (
	"testing"
	"time"

	"parley/pkg/domain"
)

func seedRoom(t *testing.T, m *MemoryStore, topicName, roomName, description string) domain.Room {
	t.Helper()
	topic, err := m.UpsertTopic(topicName)
	if err != nil {
		t.Fatalf("upsert topic %q: %v", topicName, err)
	}
	room := domain.Room{
		ID:          "room-" + roomName,
		HostID:      "host-1",
		TopicID:     topic.ID,
		Name:        roomName,
		Description: description,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := m.SaveRoom(room); err != nil {
		t.Fatalf("save room %q: %v", roomName, err)
	}
	return room
}

func TestSearchRoomsMatchesTopicNameAndDescription(t *testing.T) {
	m := NewMemoryStore()
	seedRoom(t, m, "Games", "Chess Club", "weekly games")
	seedRoom(t, m, "Cooking", "Sourdough", "bread talk")
	seedRoom(t, m, "Go", "Gopher den", "all about games of go")

	cases := []struct {
		q    string
		want int
	}{
		{"", 3},          // empty query matches everything
		{"games", 2},     // topic name "Games" + description "games of go"
		{"CHESS", 1},     // room name, case-insensitive
		{"bread", 1},     // description
		{"nonexist", 0},
	}
	for _, tc := range cases {
		rooms, err := m.SearchRooms(tc.q)
		if err != nil {
			t.Fatalf("search %q: %v", tc.q, err)
		}
		if len(rooms) != tc.want {
			t.Fatalf("search %q returned %d rooms, want %d", tc.q, len(rooms), tc.want)
		}
	}
}

func TestSearchMessagesByTopicIgnoresBody(t *testing.T) {
	m := NewMemoryStore()
	games := seedRoom(t, m, "Games", "Chess Club", "")
	cooking := seedRoom(t, m, "Cooking", "Sourdough", "")

	if err := m.SaveMessage(domain.Message{ID: "m1", RoomID: games.ID, UserID: "u1", Body: "anyone for bread?"}); err != nil {
		t.Fatalf("save message: %v", err)
	}
	if err := m.SaveMessage(domain.Message{ID: "m2", RoomID: cooking.ID, UserID: "u1", Body: "chess is fun"}); err != nil {
		t.Fatalf("save message: %v", err)
	}

	// "chess" only appears in a message body; the filter inspects topic
	// names only, so nothing matches.
	msgs, err := m.SearchMessagesByTopic("chess")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("body match leaked through topic filter: %d messages", len(msgs))
	}

	msgs, err = m.SearchMessagesByTopic("games")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Fatalf("topic filter returned %v, want [m1]", msgs)
	}

	// Empty query matches all messages.
	msgs, err = m.SearchMessagesByTopic("")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("empty query returned %d messages, want 2", len(msgs))
	}
}

func TestUpsertTopicReusesExactName(t *testing.T) {
	m := NewMemoryStore()
	first, err := m.UpsertTopic("Games")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := m.UpsertTopic("Games")
	if err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("duplicate topic created: %q vs %q", first.ID, second.ID)
	}
	// Name comparison is exact, so a different casing is a new topic.
	other, err := m.UpsertTopic("games")
	if err != nil {
		t.Fatalf("upsert lowercase: %v", err)
	}
	if other.ID == first.ID {
		t.Fatal("case-different name must create a distinct topic")
	}
}

func TestAddParticipantIsIdempotent(t *testing.T) {
	m := NewMemoryStore()
	room := seedRoom(t, m, "Games", "Chess Club", "")

	for i := 0; i < 3; i++ {
		if err := m.AddParticipant(room.ID, "user-b"); err != nil {
			t.Fatalf("add participant: %v", err)
		}
	}
	got, ok, err := m.GetRoom(room.ID)
	if err != nil || !ok {
		t.Fatalf("get room: ok=%v err=%v", ok, err)
	}
	if len(got.Participants) != 1 || got.Participants[0] != "user-b" {
		t.Fatalf("participants = %v, want exactly [user-b]", got.Participants)
	}
}

func TestDeleteRoomCascadesMessages(t *testing.T) {
	m := NewMemoryStore()
	room := seedRoom(t, m, "Games", "Chess Club", "")
	other := seedRoom(t, m, "Cooking", "Sourdough", "")

	if err := m.SaveMessage(domain.Message{ID: "m1", RoomID: room.ID, UserID: "u1", Body: "hi"}); err != nil {
		t.Fatalf("save message: %v", err)
	}
	if err := m.SaveMessage(domain.Message{ID: "m2", RoomID: other.ID, UserID: "u1", Body: "yo"}); err != nil {
		t.Fatalf("save message: %v", err)
	}
	if err := m.AddParticipant(room.ID, "u1"); err != nil {
		t.Fatalf("add participant: %v", err)
	}

	if err := m.DeleteRoom(room.ID); err != nil {
		t.Fatalf("delete room: %v", err)
	}
	if _, ok, _ := m.GetRoom(room.ID); ok {
		t.Fatal("room still present after delete")
	}
	if _, ok, _ := m.GetMessage("m1"); ok {
		t.Fatal("room message survived cascade")
	}
	if _, ok, _ := m.GetMessage("m2"); !ok {
		t.Fatal("message of another room was deleted")
	}
}

func TestListTopicsLimit(t *testing.T) {
	m := NewMemoryStore()
	names := []string{"a", "b", "c", "d", "e", "f", "g"}
	for _, n := range names {
		if _, err := m.UpsertTopic(n); err != nil {
			t.Fatalf("upsert %q: %v", n, err)
		}
	}
	topics, err := m.ListTopics(5)
	if err != nil {
		t.Fatalf("list topics: %v", err)
	}
	if len(topics) != 5 {
		t.Fatalf("got %d topics, want 5", len(topics))
	}
	for i, topic := range topics {
		if topic.Name != names[i] {
			t.Fatalf("topic order not stable: got %q at %d", topic.Name, i)
		}
	}
}
