FROM golang:1.24-alpine AS builder

# api | worker | migrate | notify-bridge
ARG SERVICE=api

WORKDIR /app

# Dependencies
COPY go.mod go.sum* ./
RUN go mod download

# Source
COPY . .

# Build (migrations are embedded)
RUN CGO_ENABLED=0 GOOS=linux go build -trimpath -o /app/service ./cmd/${SERVICE}

# Runtime
FROM alpine:3.19

RUN apk add --no-cache ca-certificates tzdata \
    && adduser -D -H ledger

WORKDIR /app

COPY --from=builder /app/service .

USER ledger

EXPOSE 3000

ENTRYPOINT ["./service"]
