package bot

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestMemberInState(t *testing.T) {
	state := discordgo.NewState()
	if err := state.GuildAdd(&discordgo.Guild{ID: "g1"}); err != nil {
		t.Fatalf("guild add: %v", err)
	}
	if err := state.MemberAdd(&discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u1"}}); err != nil {
		t.Fatalf("member add: %v", err)
	}

	if !memberInState(state, "g1", "u1") {
		t.Fatal("expected cached member to be found")
	}
	if memberInState(state, "g1", "u2") {
		t.Fatal("expected unknown user to miss")
	}
	if memberInState(state, "g2", "u1") {
		t.Fatal("expected unknown guild to miss")
	}
	if memberInState(nil, "g1", "u1") {
		t.Fatal("expected nil state to miss")
	}
}
