package ingest

// envelopeSchema describes the telemetry envelope accepted on every transport.
// Feature bags are checked for shape only; the matching between channel and
// bag is enforced by ChannelSnapshot.Validate.
const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["device_id", "channel"],
  "properties": {
    "message_id": {"type": "string", "maxLength": 128},
    "device_id": {"type": "string", "minLength": 1, "maxLength": 128},
    "channel": {"enum": ["wireless", "transport", "traffic", "app_risk"]},
    "observed_at": {"type": "string", "format": "date-time"},
    "wireless": {
      "type": "object",
      "required": ["ssid", "bssid", "security", "band"],
      "properties": {
        "ssid": {"type": "string"},
        "bssid": {"type": "string"},
        "vendor_oui": {"type": "string"},
        "security": {"type": "string"},
        "band": {"type": "string"},
        "channel": {"type": "integer"},
        "rssi": {"type": "integer", "minimum": -120, "maximum": 0}
      }
    },
    "transport": {
      "type": "object",
      "required": ["rtt_ms", "chain_depth", "issuer_trusted"],
      "properties": {
        "rtt_ms": {"type": "number"},
        "chain_depth": {"type": "integer"},
        "issuer_trusted": {"type": "boolean"},
        "issuer": {"type": "string"},
        "host": {"type": "string"}
      }
    },
    "traffic": {
      "type": "object",
      "required": ["bytes_in", "bytes_out"],
      "properties": {
        "bytes_in": {"type": "number"},
        "bytes_out": {"type": "number"}
      }
    },
    "apps": {
      "type": "object",
      "required": ["apps"],
      "properties": {
        "apps": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["package"],
            "properties": {
              "package": {"type": "string", "minLength": 1},
              "name": {"type": "string"},
              "permissions": {"type": "array", "items": {"type": "string"}},
              "signature_match": {"type": "boolean"},
              "heuristic_flags": {"type": "array", "items": {"type": "string"}}
            }
          }
        }
      }
    }
  }
}`
