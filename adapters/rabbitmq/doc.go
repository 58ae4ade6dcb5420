/*
Package rabbitmq provides a RabbitMQ transport for the service bus.
Commands and queued listeners go to the default exchange routed by queue name,
integration events to a topic exchange. The publisher reconnects on its own and
Consumer runs as a hosting.BackgroundService feeding a servicebus.Receiver.
*/
package rabbitmq
