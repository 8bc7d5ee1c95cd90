package qdrant

import (
	"fmt"
	"sort"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/efebarandurmaz/medrag/internal/vector"
)

func toPayload(content string, fields map[string]any) (map[string]*pb.Value, error) {
	out := make(map[string]*pb.Value, len(fields)+1)
	for k, v := range fields {
		val, err := toValue(v)
		if err != nil {
			return nil, fmt.Errorf("payload %q: %w", k, err)
		}
		out[k] = val
	}
	out[vector.PayloadContent] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: content}}
	return out, nil
}

func fromPayload(payload map[string]*pb.Value) (string, map[string]any) {
	content := ""
	fields := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == vector.PayloadContent {
			content = v.GetStringValue()
			continue
		}
		fields[k] = fromValue(v)
	}
	return content, fields
}

func toValue(v any) (*pb.Value, error) {
	switch x := v.(type) {
	case nil:
		return &pb.Value{Kind: &pb.Value_NullValue{NullValue: pb.NullValue_NULL_VALUE}}, nil
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: x}}, nil
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: x}}, nil
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(x)}}, nil
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: x}}, nil
	case float32:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(x)}}, nil
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: x}}, nil
	case []string:
		values := make([]*pb.Value, len(x))
		for i, s := range x {
			values[i] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}}}, nil
	case []any:
		values := make([]*pb.Value, len(x))
		for i, item := range x {
			val, err := toValue(item)
			if err != nil {
				return nil, err
			}
			values[i] = val
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}}}, nil
	case map[string]any:
		fields := make(map[string]*pb.Value, len(x))
		for k, item := range x {
			val, err := toValue(item)
			if err != nil {
				return nil, err
			}
			fields[k] = val
		}
		return &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: fields}}}, nil
	}
	return nil, fmt.Errorf("unsupported payload type %T", v)
}

func fromValue(v *pb.Value) any {
	switch k := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	case *pb.Value_IntegerValue:
		return k.IntegerValue
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	case *pb.Value_ListValue:
		items := k.ListValue.GetValues()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = fromValue(item)
		}
		return out
	case *pb.Value_StructValue:
		fields := k.StructValue.GetFields()
		out := make(map[string]any, len(fields))
		for name, item := range fields {
			out[name] = fromValue(item)
		}
		return out
	}
	return nil
}

func toFilter(f vector.Filter) (*pb.Filter, error) {
	if len(f) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	must := make([]*pb.Condition, 0, len(keys))
	for _, k := range keys {
		var match *pb.Match
		switch v := f[k].(type) {
		case string:
			match = &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: v}}
		case bool:
			match = &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: v}}
		case int:
			match = &pb.Match{MatchValue: &pb.Match_Integer{Integer: int64(v)}}
		default:
			return nil, fmt.Errorf("%w: %s=%T", vector.ErrUnsupportedFilter, k, v)
		}
		must = append(must, &pb.Condition{ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{Key: k, Match: match},
		}})
	}
	return &pb.Filter{Must: must}, nil
}
