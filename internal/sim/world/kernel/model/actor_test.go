package model

import (
	"errors"
	"reflect"
	"testing"
)

func TestActorStateRoundTrip(t *testing.T) {
	a := &Actor{
		ID:          "M7",
		Type:        "SHEEP",
		Kind:        ActorKindMob,
		Name:        "Dolly",
		Pos:         Vec3i{X: 3, Y: 0, Z: -2},
		HP:          8,
		Equipment:   map[string]string{"head": "IRON_HELMET"},
		Attributes:  map[string]int{"wool": 2},
		Bonded:      true,
		Attractable: true,
		Priority:    true,
	}
	blob, err := EncodeActorState(a)
	if err != nil {
		t.Fatalf("EncodeActorState: %v", err)
	}
	at := Vec3i{X: 10, Y: 0, Z: 10}
	got, err := DecodeActorState("SHEEP", blob, at)
	if err != nil {
		t.Fatalf("DecodeActorState: %v", err)
	}
	want := *a
	want.Pos = at
	if !reflect.DeepEqual(*got, want) {
		t.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", *got, want)
	}
}

func TestDecodeActorState_Corrupt(t *testing.T) {
	if _, err := DecodeActorState("SHEEP", []byte("{nope"), Vec3i{}); !errors.Is(err, ErrCorruptState) {
		t.Fatalf("err=%v, want ErrCorruptState", err)
	}
	if _, err := DecodeActorState("SHEEP", nil, Vec3i{}); !errors.Is(err, ErrCorruptState) {
		t.Fatalf("empty blob err=%v, want ErrCorruptState", err)
	}
	if _, err := DecodeActorState("COW", []byte(`{"type":"SHEEP"}`), Vec3i{}); !errors.Is(err, ErrCorruptState) {
		t.Fatalf("type mismatch err=%v, want ErrCorruptState", err)
	}
}

func TestStepToward(t *testing.T) {
	p := Vec3i{}
	target := Vec3i{X: 2, Z: -1}
	p = StepToward(p, target)
	if p != (Vec3i{X: 1}) {
		t.Fatalf("step1=%v", p)
	}
	p = StepToward(p, target)
	p = StepToward(p, target)
	if p != target {
		t.Fatalf("step3=%v, want %v", p, target)
	}
	if StepToward(target, target) != target {
		t.Fatalf("step at target moved")
	}
}

func TestInRadius(t *testing.T) {
	c := Vec3i{}
	if !InRadius(c, Vec3i{X: 3, Z: 4}, 5) {
		t.Fatalf("3,4 should be within 5")
	}
	if InRadius(c, Vec3i{X: 3, Z: 5}, 5) {
		t.Fatalf("3,5 should be outside 5")
	}
}
