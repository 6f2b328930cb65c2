package httpapi

import (
	"net/http"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/types"
)

const protobufContentType = "application/x-protobuf"

// wantsProtobuf reports whether the client asked for a protobuf body.
func wantsProtobuf(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		switch strings.TrimSpace(mt) {
		case protobufContentType, "application/protobuf":
			return true
		}
	}
	return false
}

// statsToProto encodes the stats listing as a ListValue of Structs, one per
// animal, keyed like the JSON body.
func statsToProto(animals []types.Animal) (*structpb.ListValue, error) {
	rows := make([]any, len(animals))
	for i, a := range animals {
		rows[i] = map[string]any{
			"tag":               a.Tag.String(),
			"entries":           a.Entries,
			"entrance_rewards":  a.EntranceRewards,
			"headfixes":         a.HeadFixes,
			"headfixed_rewards": a.HeadFixedRewards,
		}
	}
	return structpb.NewList(rows)
}

// writeProto marshals msg and writes it with the given HTTP status.
func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	data, err := proto.Marshal(msg)
	if err != nil {
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", protobufContentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
